package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/pipeline"
	"github.com/John-Robertt/subresponse-go/internal/render"
)

// clientTargets maps the {client} path segment to a generator target.
var clientTargets = map[string]render.Target{
	"mihomo":  render.TargetMihomo,
	"clash":   render.TargetClash,
	"stash":   render.TargetStash,
	"singbox": render.TargetSingBox,
	"json":    render.TargetXrayJSON,
	"v2ray":   render.TargetXrayBase64,
}

type subHandler struct {
	opt Options
}

func (h subHandler) handleSub(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pipeline.Request{ShortUUID: r.PathValue("shortUuid")})
}

func (h subHandler) handleRaw(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pipeline.Request{ShortUUID: r.PathValue("shortUuid"), Target: render.TargetRaw})
}

func (h subHandler) handleClient(w http.ResponseWriter, r *http.Request) {
	client := strings.ToLower(strings.TrimSpace(r.PathValue("client")))
	target, ok := clientTargets[client]
	if !ok {
		writeErrorFromErr(w, apiError(http.StatusNotFound, model.AppError{
			Code:    "UNSUPPORTED_CLIENT",
			Message: "不支持的客户端类型",
			Stage:   "validate_request",
			Snippet: client,
			Hint:    "expected: mihomo|clash|stash|singbox|json|v2ray",
		}, nil))
		return
	}
	h.serve(w, r, pipeline.Request{ShortUUID: r.PathValue("shortUuid"), Target: target})
}

func (h subHandler) handleOutline(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, pipeline.Request{
		ShortUUID:  r.PathValue("shortUuid"),
		Target:     render.TargetOutline,
		OutlineTag: r.PathValue("tag"),
	})
}

func (h subHandler) serve(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	if strings.TrimSpace(req.ShortUUID) == "" {
		writeErrorFromErr(w, requestError("INVALID_ARGUMENT", "shortUuid 不能为空", ""))
		return
	}
	if h.opt.Subscriptions == nil {
		writeErrorFromErr(w, apiError(http.StatusServiceUnavailable, model.AppError{
			Code:    "NOT_READY",
			Message: "订阅服务未配置",
			Stage:   "validate_request",
		}, nil))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opt.RequestTimeout)
	defer cancel()

	req.Headers = r.Header
	res, err := h.opt.Subscriptions.Serve(ctx, req)
	if err != nil {
		h.opt.Logger.WithError(err).WithField("path", r.URL.Path).Warn("subscription failed")
		writeErrorFromErr(w, err)
		return
	}

	metricsIncResponse(res)
	if !res.Rendered() {
		h.writeNonRendered(w, r, res)
		return
	}

	setSubscriptionHeaders(w, res, h.opt)
	w.Header().Set("Content-Type", res.ContentType+"; charset=utf-8")
	applyRuleHeaders(w, res.Headers)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.Body))
}

func (h subHandler) writeNonRendered(w http.ResponseWriter, r *http.Request, res *pipeline.Result) {
	switch res.ResponseType {
	case model.ResponseSocketDrop:
		conn, _, err := http.NewResponseController(w).Hijack()
		if err != nil {
			// HTTP/2 and some test writers cannot hijack; an empty 403 is
			// the closest observable behavior.
			h.opt.Logger.WithError(err).Debug("socket drop: hijack unavailable")
			applyRuleHeaders(w, res.Headers)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = conn.Close()
	case model.ResponseBrowser:
		writeBrowserPage(w, res.Headers)
	default:
		w.Header().Set("Content-Type", res.ContentType+"; charset=utf-8")
		applyRuleHeaders(w, res.Headers)
		w.WriteHeader(nonRenderedStatus(res.ResponseType))
	}
	h.opt.Logger.WithFields(logrus.Fields{
		"rule":          res.RuleName,
		"response_type": res.ResponseType,
		"path":          r.URL.Path,
	}).Debug("non-rendered response")
}

func nonRenderedStatus(t model.ResponseType) int {
	switch t {
	case model.ResponseStatus404:
		return http.StatusNotFound
	case model.ResponseStatus451:
		return http.StatusUnavailableForLegalReasons
	default:
		return http.StatusForbidden
	}
}

// applyRuleHeaders runs last so a rule can override any header the service set.
func applyRuleHeaders(w http.ResponseWriter, headers []model.HeaderKV) {
	for _, kv := range headers {
		k := strings.TrimSpace(kv.Key)
		if k == "" || strings.ContainsAny(k+kv.Value, "\r\n") {
			continue
		}
		w.Header().Set(k, kv.Value)
	}
}
