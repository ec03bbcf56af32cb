package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

func TestWriteError_JSONShapeAndHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusInternalServerError, model.AppError{
		Code:    "RULES_VALIDATE_ERROR",
		Message: "invalid rule",
		Stage:   "parse_rules",
		URL:     "rules.yaml",
		Line:    3,
		Snippet: "operator: XOR",
		Hint:    "expected: AND | OR",
	})

	if got, want := rr.Code, http.StatusInternalServerError; got != want {
		t.Fatalf("status = %d, want %d", got, want)
	}

	if got, want := rr.Header().Get("Content-Type"), "application/json; charset=utf-8"; got != want {
		t.Fatalf("Content-Type = %q, want %q", got, want)
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	if resp.Error.Code != "RULES_VALIDATE_ERROR" {
		t.Fatalf("code = %q, want %q", resp.Error.Code, "RULES_VALIDATE_ERROR")
	}
	if resp.Error.Stage != "parse_rules" {
		t.Fatalf("stage = %q, want %q", resp.Error.Stage, "parse_rules")
	}
	if resp.Error.Line != 3 {
		t.Fatalf("line = %d, want %d", resp.Error.Line, 3)
	}
}
