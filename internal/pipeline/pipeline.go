// Package pipeline runs one subscription request through rule evaluation,
// host formatting and generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subresponse-go/internal/hosts"
	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/render"
	"github.com/John-Robertt/subresponse-go/internal/rules"
	"github.com/John-Robertt/subresponse-go/internal/template"
)

// Store is the read side of persistence the pipeline needs. Missing records
// are reported with errors wrapping model.ErrNotFound.
type Store interface {
	LoadRulesConfig(ctx context.Context) (*model.RulesConfig, error)
	LoadUser(ctx context.Context, shortUUID string) (*model.UserSecrets, error)
	LoadHosts(ctx context.Context, squadID uint) ([]model.Host, error)
	LoadOverrides(ctx context.Context, squadID uint) (map[uint]model.Override, error)
}

// Templates hands out private template clones.
type Templates interface {
	Get(ctx context.Context, typ model.TemplateType, name string) (*template.Document, error)
}

type Options struct {
	// XrayJSONFallback answers XRAY_BASE64 with Xray-JSON for capable clients.
	XrayJSONFallback bool

	Now    func() time.Time
	Logger logrus.FieldLogger
}

type State int

const (
	StateEvaluating State = iota
	StateFormatting
	StateGenerating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateEvaluating:
		return "evaluate_rules"
	case StateFormatting:
		return "format_hosts"
	case StateGenerating:
		return "generate"
	default:
		return "done"
	}
}

type Request struct {
	ShortUUID string
	Headers   http.Header

	// Target skips rule evaluation when set.
	Target     render.Target
	OutlineTag string
}

type Result struct {
	// ResponseType is empty when the request named an explicit target.
	ResponseType model.ResponseType
	RuleName     string

	Target      render.Target
	ContentType string
	Body        string

	// Headers are the matched rule's extra response headers; the HTTP layer
	// applies them last.
	Headers []model.HeaderKV

	User    *model.UserSecrets
	Skipped []model.SkippedHost
}

// Rendered reports whether the result carries a generated body.
func (r *Result) Rendered() bool {
	return r.Target != ""
}

type Error struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

type Service struct {
	store     Store
	templates Templates
	opt       Options
}

func New(store Store, templates Templates, opt Options) *Service {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opt.Logger = l
	}
	return &Service{store: store, templates: templates, opt: opt}
}

// Serve runs Evaluating -> Formatting -> Generating -> Done. Any stage error
// is terminal; per-host problems only shrink the payload.
func (s *Service) Serve(ctx context.Context, req Request) (*Result, error) {
	log := s.opt.Logger.WithField("short_uuid", req.ShortUUID)
	res := &Result{}
	renderOpt := render.Options{OutlineTag: req.OutlineTag}
	templateName := model.DefaultTemplateName

	// Evaluating
	if req.Target != "" {
		res.Target = req.Target
	} else {
		d, err := s.evaluate(ctx, req.Headers)
		if err != nil {
			return nil, err
		}
		res.ResponseType = d.ResponseType
		res.RuleName = d.RuleName
		if d.Modifications != nil {
			res.Headers = d.Modifications.Headers
		}
		templateName = d.TemplateName()
		log = log.WithFields(logrus.Fields{"rule": d.RuleName, "response_type": d.ResponseType})

		if !d.ResponseType.Rendered() {
			res.ContentType = d.ResponseType.ContentType()
			log.Debug("non-rendered response")
			return res, nil
		}
		res.Target, _ = render.TargetFor(d.ResponseType)
	}
	if res.Target == render.TargetXrayBase64 && s.opt.XrayJSONFallback && SupportsXrayJSON(req.Headers.Get("User-Agent")) {
		renderOpt.JSONFallback = true
	}
	capa, ok := render.Capabilities(res.Target)
	if !ok {
		return nil, stageError(StateEvaluating, http.StatusNotFound, "UNSUPPORTED_TARGET", fmt.Sprintf("不支持的 target：%s", res.Target), nil)
	}

	// Formatting
	user, formatted, skipped, err := s.format(ctx, req.ShortUUID)
	if err != nil {
		return nil, err
	}
	res.User = user
	res.Skipped = skipped

	// Generating
	var doc *template.Document
	if typ := capa.TemplateTypeFor(renderOpt); typ != "" {
		doc, err = s.templates.Get(ctx, typ, templateName)
		if err != nil {
			return nil, err
		}
	}
	out, err := render.Generate(res.Target, formatted, doc, renderOpt)
	if err != nil {
		return nil, err
	}
	res.Body = out.Body
	res.ContentType = out.ContentType
	res.Skipped = append(res.Skipped, out.Skipped...)

	for _, sk := range res.Skipped {
		log.WithFields(logrus.Fields{"host_id": sk.HostID, "remark": sk.Remark, "reason": sk.Reason}).Warn("host skipped")
	}
	log.WithFields(logrus.Fields{"target": res.Target, "hosts": len(formatted)}).Debug("subscription rendered")
	return res, nil
}

func (s *Service) evaluate(ctx context.Context, headers http.Header) (rules.Decision, error) {
	cfg, err := s.store.LoadRulesConfig(ctx)
	if errors.Is(err, model.ErrNotFound) {
		cfg, err = rules.DefaultConfig(), nil
	}
	if err != nil {
		return rules.Decision{}, stageError(StateEvaluating, http.StatusInternalServerError, "RULES_LOAD_ERROR", "响应规则加载失败", err)
	}
	ev, err := rules.Compile(cfg)
	if err != nil {
		return rules.Decision{}, err
	}
	if headers == nil {
		headers = http.Header{}
	}
	d, err := ev.Evaluate(headers)
	if err != nil {
		return rules.Decision{}, err
	}
	s.opt.Logger.WithFields(logrus.Fields{"rules_version": ev.Version(), "rule": d.RuleName}).Debug("rules evaluated")
	return d, nil
}

func (s *Service) format(ctx context.Context, shortUUID string) (*model.UserSecrets, []model.FormattedHost, []model.SkippedHost, error) {
	user, err := s.store.LoadUser(ctx, shortUUID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil, nil, stageError(StateFormatting, http.StatusNotFound, "USER_NOT_FOUND", "用户不存在", err)
	}
	if err != nil {
		return nil, nil, nil, stageError(StateFormatting, http.StatusInternalServerError, "LOAD_ERROR", "用户加载失败", err)
	}

	stored, err := s.store.LoadHosts(ctx, user.SquadID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, nil, nil, stageError(StateFormatting, http.StatusInternalServerError, "LOAD_ERROR", "节点加载失败", err)
	}
	overrides, err := s.store.LoadOverrides(ctx, user.SquadID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, nil, nil, stageError(StateFormatting, http.StatusInternalServerError, "LOAD_ERROR", "节点覆盖配置加载失败", err)
	}

	formatted, skipped := hosts.FormatAt(stored, *user, overrides, s.opt.Now())
	return user, formatted, skipped, nil
}

func stageError(st State, status int, code, msg string, cause error) *Error {
	return &Error{
		Status:   status,
		AppError: model.AppError{Code: code, Message: msg, Stage: st.String()},
		Cause:    cause,
	}
}
