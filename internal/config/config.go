// Package config loads the service configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

type Config struct {
	Listen   string `yaml:"listen"`
	Database string `yaml:"database"`
	LogLevel string `yaml:"log_level"`

	TemplateTTL       time.Duration `yaml:"template_ttl"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// XrayJSONFallback answers XRAY_BASE64 with Xray-JSON for clients known
	// to import it.
	XrayJSONFallback bool `yaml:"xray_json_fallback"`

	ProfileTitle        string `yaml:"profile_title"`
	UpdateIntervalHours int    `yaml:"update_interval_hours"`
	SupportURL          string `yaml:"support_url"`

	// RulesFile seeds the rules config into the database at startup and on
	// SIGHUP. It may be a local path or an http(s) URL.
	RulesFile string `yaml:"rules_file"`
}

func Default() Config {
	return Config{
		Listen:              "127.0.0.1:25500",
		Database:            "data/subresponse.db",
		LogLevel:            "info",
		TemplateTTL:         5 * time.Minute,
		ReadHeaderTimeout:   5 * time.Second,
		RequestTimeout:      30 * time.Second,
		FetchTimeout:        15 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		ProfileTitle:        "subresponse",
		UpdateIntervalHours: 12,
	}
}

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

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ParseError{
			AppError: model.AppError{Code: "CONFIG_READ_ERROR", Message: "配置文件读取失败", Stage: "load_config", URL: path},
			Cause:    err,
		}
	}
	return Parse(path, string(b))
}

// Parse decodes content over the defaults and validates the result.
func Parse(source, content string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(content) != "" {
		if err := yamlDecodeStrict(content, &cfg); err != nil {
			return Config{}, &ParseError{
				AppError: model.AppError{
					Code:    "CONFIG_PARSE_ERROR",
					Message: "配置文件 YAML 解析失败",
					Stage:   "load_config",
					URL:     source,
					Snippet: truncateSnippet(content, 200),
				},
				Cause: err,
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.AppError.URL = source
		}
		return Config{}, err
	}
	return cfg, nil
}

func validateError(msg, snippet string, cause error) *ParseError {
	return &ParseError{
		AppError: model.AppError{Code: "CONFIG_VALIDATE_ERROR", Message: msg, Stage: "load_config", Snippet: snippet},
		Cause:    cause,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return validateError("listen 不能为空", "", nil)
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return validateError("listen 不合法", c.Listen, err)
	}
	if strings.TrimSpace(c.Database) == "" {
		return validateError("database 不能为空", "", nil)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return validateError("log_level 不合法", c.LogLevel, err)
	}
	durations := []struct {
		key string
		v   time.Duration
	}{
		{"template_ttl", c.TemplateTTL},
		{"read_header_timeout", c.ReadHeaderTimeout},
		{"request_timeout", c.RequestTimeout},
		{"fetch_timeout", c.FetchTimeout},
		{"shutdown_timeout", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.v <= 0 {
			return validateError(fmt.Sprintf("%s 必须大于 0", d.key), d.v.String(), nil)
		}
	}
	if c.UpdateIntervalHours < 0 {
		return validateError("update_interval_hours 不能为负数", fmt.Sprint(c.UpdateIntervalHours), nil)
	}
	if s := strings.TrimSpace(c.SupportURL); s != "" {
		if err := validateHTTPURL(s); err != nil {
			return validateError("support_url 不合法", s, err)
		}
	}
	return nil
}

func yamlDecodeStrict(content string, out any) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}

	var extra any
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if !u.IsAbs() {
		return errors.New("url must be absolute")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http/https")
	}
	return nil
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if len(s) <= max {
		return s
	}
	return s[:max]
}
