package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/subresponse-go/internal/fetch"
	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/pipeline"
	"github.com/John-Robertt/subresponse-go/internal/render"
	"github.com/John-Robertt/subresponse-go/internal/rules"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

// errorStatus maps a pipeline error to its HTTP status and payload. Rule,
// template and render failures are operator configuration errors => 500.
func errorStatus(err error) (int, model.AppError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status, ae.AppError, true
	}

	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return pe.Status, pe.AppError, true
	}

	// A remote template fetch keeps its own status (502/504/...).
	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		return fe.Status, fe.AppError, true
	}

	var ee *rules.EvalError
	if errors.As(err, &ee) {
		return http.StatusInternalServerError, ee.AppError, true
	}

	var rpe *rules.ParseError
	if errors.As(err, &rpe) {
		return http.StatusInternalServerError, rpe.AppError, true
	}

	var te *template.TemplateError
	if errors.As(err, &te) {
		return http.StatusInternalServerError, te.AppError, true
	}

	var re *render.RenderError
	if errors.As(err, &re) {
		switch re.AppError.Code {
		case "OUTLINE_HOST_NOT_FOUND", "UNSUPPORTED_TARGET":
			return http.StatusNotFound, re.AppError, true
		}
		return http.StatusInternalServerError, re.AppError, true
	}
	return 0, model.AppError{}, false
}

func writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if status, app, ok := errorStatus(err); ok {
		WriteError(w, status, app)
		return
	}

	// Fallback: internal bug.
	WriteError(w, http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
		Hint:    err.Error(),
	})
}
