package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"gopkg.in/yaml.v3"
)

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ParseConfig decodes and validates a rules config document.
//
// data may be JSON (first non-space byte is '{') or YAML. Unknown fields and
// multi-document input are rejected. source is only used for error reporting.
func ParseConfig(source string, data []byte) (*model.RulesConfig, error) {
	var cfg model.RulesConfig
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{
			AppError: model.AppError{
				Code:    "RULES_PARSE_ERROR",
				Message: "规则配置为空",
				Stage:   "parse_rules",
				URL:     source,
			},
		}
	}

	var err error
	if trimmed[0] == '{' {
		err = jsonDecodeStrict(trimmed, &cfg)
	} else {
		err = yamlDecodeStrict(trimmed, &cfg)
	}
	if err != nil {
		return nil, &ParseError{
			AppError: model.AppError{
				Code:    "RULES_PARSE_ERROR",
				Message: "规则配置解析失败",
				Stage:   "parse_rules",
				URL:     source,
				Snippet: truncateSnippet(string(trimmed), 200),
			},
			Cause: err,
		}
	}

	if err := Validate(&cfg); err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.AppError.URL = source
		}
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a decoded config without compiling it.
func Validate(cfg *model.RulesConfig) error {
	if cfg == nil {
		return validateError(0, "规则配置为空", "")
	}
	if strings.TrimSpace(cfg.Version) == "" {
		return validateError(0, "version 不能为空", `expected: version: "1"`)
	}
	for i, r := range cfg.Rules {
		idx := i + 1
		if strings.TrimSpace(r.Name) == "" {
			return validateError(idx, "规则 name 不能为空", "")
		}
		if r.Operator != model.RuleAND && r.Operator != model.RuleOR {
			return validateError(idx, fmt.Sprintf("规则 %q 的 operator 不支持：%q", r.Name, r.Operator), "expected: AND | OR")
		}
		if !r.ResponseType.Valid() {
			return validateError(idx, fmt.Sprintf("规则 %q 的 responseType 不支持：%q", r.Name, r.ResponseType), "")
		}
		for _, c := range r.Conditions {
			if strings.TrimSpace(c.HeaderName) == "" {
				return validateError(idx, fmt.Sprintf("规则 %q 存在空 headerName", r.Name), "")
			}
			if _, ok := lookupOperator(c.Operator); !ok {
				return validateError(idx, fmt.Sprintf("规则 %q 的条件 operator 不支持：%q", r.Name, c.Operator), "")
			}
			if isRegexOperator(c.Operator) {
				if _, err := regexp.Compile(regexPattern(c)); err != nil {
					return &ParseError{
						AppError: model.AppError{
							Code:    "RULES_VALIDATE_ERROR",
							Message: fmt.Sprintf("规则 %q 的正则表达式不合法", r.Name),
							Stage:   "parse_rules",
							Line:    idx,
							Snippet: truncateSnippet(c.Value, 200),
						},
						Cause: err,
					}
				}
			}
		}
	}
	return nil
}

// validateError uses AppError.Line as the 1-based rule index.
func validateError(idx int, msg string, hint string) error {
	return &ParseError{
		AppError: model.AppError{
			Code:    "RULES_VALIDATE_ERROR",
			Message: msg,
			Stage:   "parse_rules",
			Line:    idx,
			Hint:    hint,
		},
	}
}

func jsonDecodeStrict(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON document")
	}
	return nil
}

func yamlDecodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}

	// Reject multi-document YAML to keep behavior deterministic.
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
