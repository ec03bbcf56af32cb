package template

import (
	"fmt"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

// TemplateError is fatal for the request: a partial skeleton is never served.
type TemplateError struct {
	AppError model.AppError
	Cause    error
}

func (e *TemplateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *TemplateError) Unwrap() error { return e.Cause }

func templateError(code, msg string, typ model.TemplateType, name string, cause error) *TemplateError {
	return &TemplateError{
		AppError: model.AppError{
			Code:    code,
			Message: msg,
			Stage:   "load_template",
			Hint:    fmt.Sprintf("template: %s/%s", typ, name),
		},
		Cause: cause,
	}
}
