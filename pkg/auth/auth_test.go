package authentication

import (
	"encoding/base64"
	"testing"
)

func TestBasicAuth(t *testing.T) {
	svc := NewBasicAuthService(&BasicAuthTConfig{
		Username:      "dashboard",
		Password:      "secret",
		AdminUsername: "admin",
		AdminPassword: "root",
	})

	header := "Basic " + base64.StdEncoding.EncodeToString([]byte("dashboard:secret"))
	user, pass := svc.DecodeFromHeader(header)
	if !svc.Validate(user, pass) {
		t.Fatalf("expected dashboard credentials to validate")
	}
	if svc.ValidateAdmin(user, pass) {
		t.Fatalf("dashboard credentials must not pass admin check")
	}
	if !svc.ValidateAdmin("admin", "root") {
		t.Fatalf("expected admin credentials to validate")
	}
	if u, p := svc.DecodeFromHeader("Basic !!!"); u != "" || p != "" {
		t.Fatalf("malformed header decoded to %q/%q", u, p)
	}
}

func TestEmptyCredentialsNeverValidate(t *testing.T) {
	svc := NewBasicAuthService(&BasicAuthTConfig{})
	if svc.Validate("", "") || svc.ValidateAdmin("", "") {
		t.Fatalf("empty configured credentials must reject")
	}
}
