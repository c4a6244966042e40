package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var lock = &sync.Mutex{}
var validate *validator.Validate

func getValidator() *validator.Validate {
	lock.Lock()
	defer lock.Unlock()
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report json names so errors match the request body
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
	return validate
}

func ValidateStruct(s interface{}) error {
	return getValidator().Struct(s)
}

func TranslateError(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			out["_"] = err.Error()
		}
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
