package model

import "errors"

// AppError is the only error payload returned by this service.
// Stage names the pipeline step that failed (evaluate_rules, format_hosts,
// load_template, generate, ...).
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage"`

	URL     string `json:"url,omitempty"`
	Line    int    `json:"line,omitempty"`    // 1-based; 0 means "not set"
	Snippet string `json:"snippet,omitempty"` // <= 200 chars
	Hint    string `json:"hint,omitempty"`
}

type ErrorResponse struct {
	Error AppError `json:"error"`
}

// ErrNotFound is returned (wrapped) by loaders when a requested record or
// template does not exist.
var ErrNotFound = errors.New("not found")
