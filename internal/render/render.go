// Package render turns formatted hosts plus a template skeleton into the
// on-wire subscription body of one client family.
package render

import (
	"fmt"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

type Target string

const (
	TargetMihomo     Target = "mihomo"
	TargetClash      Target = "clash"
	TargetStash      Target = "stash"
	TargetSingBox    Target = "singbox"
	TargetXrayJSON   Target = "xray-json"
	TargetXrayBase64 Target = "xray-base64"
	TargetRaw        Target = "raw"
	TargetOutline    Target = "outline"
)

var responseTargets = map[model.ResponseType]Target{
	model.ResponseMihomo:     TargetMihomo,
	model.ResponseClash:      TargetClash,
	model.ResponseStash:      TargetStash,
	model.ResponseSingBox:    TargetSingBox,
	model.ResponseXrayJSON:   TargetXrayJSON,
	model.ResponseXrayBase64: TargetXrayBase64,
}

// TargetFor maps a rendered response type to its generator target.
func TargetFor(rt model.ResponseType) (Target, bool) {
	t, ok := responseTargets[rt]
	return t, ok
}

type Options struct {
	// JSONFallback makes the Base64 generator answer with Xray-JSON documents
	// for clients that can import them.
	JSONFallback bool
	// OutlineTag selects the shadowsocks host for the Outline target; empty
	// picks the first one.
	OutlineTag string
}

type Output struct {
	Body        string
	ContentType string
	Skipped     []model.SkippedHost
}

// Generator renders one target. doc is a private clone owned by the call and
// may be mutated; it is nil for targets without a template.
type Generator interface {
	Generate(hosts []model.FormattedHost, doc *template.Document, opt Options) (Output, error)
}

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

func renderError(code, msg string, cause error) *RenderError {
	return &RenderError{
		AppError: model.AppError{Code: code, Message: msg, Stage: "generate"},
		Cause:    cause,
	}
}

var generators = map[Target]Generator{
	TargetMihomo:     clashGenerator{flavor: TargetMihomo},
	TargetClash:      clashGenerator{flavor: TargetClash},
	TargetStash:      clashGenerator{flavor: TargetStash},
	TargetSingBox:    singBoxGenerator{},
	TargetXrayJSON:   xrayJSONGenerator{},
	TargetXrayBase64: base64Generator{},
	TargetRaw:        rawHostGenerator{},
	TargetOutline:    outlineGenerator{},
}

// Generate dispatches to the generator registered for target. Hosts the
// target cannot carry are reported in Output.Skipped, never as an error.
func Generate(target Target, hosts []model.FormattedHost, doc *template.Document, opt Options) (Output, error) {
	gen, ok := generators[target]
	if !ok {
		return Output{}, renderError("UNSUPPORTED_TARGET", fmt.Sprintf("不支持的 target：%s", target), nil)
	}
	capa := capabilities[target]
	want := capa.TemplateTypeFor(opt)
	if want != "" && (doc == nil || doc.Type != want) {
		got := model.TemplateType("")
		if doc != nil {
			got = doc.Type
		}
		return Output{}, renderError("TEMPLATE_TYPE_MISMATCH", fmt.Sprintf("target %s 需要 %s 模板，实际为 %q", target, want, got), nil)
	}

	out, err := gen.Generate(hosts, doc, opt)
	if err != nil {
		return Output{}, err
	}
	if out.ContentType == "" {
		out.ContentType = capa.ContentType
	}
	return out, nil
}

func skip(h model.FormattedHost, format string, args ...any) model.SkippedHost {
	return model.SkippedHost{HostID: h.HostID, Remark: h.Remark, Reason: fmt.Sprintf(format, args...)}
}
