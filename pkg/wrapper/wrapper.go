package wrapper

type JSONResult struct {
	Code      int         `json:"-"`
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"code,omitempty"`
	Data      interface{} `json:"data"`
}

func ResponseSuccess(httpCode int, data interface{}) JSONResult {
	return JSONResult{
		Code:    httpCode,
		Success: true,
		Message: "Success",
		Data:    data,
	}
}

func ResponseFailed(httpCode int, message string, data interface{}) JSONResult {
	return JSONResult{
		Code:    httpCode,
		Success: false,
		Message: message,
		Data:    data,
	}
}

// ResponseRejected is a failure carrying a machine-readable code.
func ResponseRejected(httpCode int, code, message string) JSONResult {
	return JSONResult{
		Code:      httpCode,
		Success:   false,
		Message:   message,
		ErrorCode: code,
	}
}
