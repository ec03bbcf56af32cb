package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/pipeline"
	"github.com/John-Robertt/subresponse-go/internal/render"
)

type fakeSubs struct {
	mu  sync.Mutex
	got []pipeline.Request
	res *pipeline.Result
	err error
}

func (f *fakeSubs) Serve(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	return &pipeline.Result{Target: req.Target, ContentType: "text/plain", Body: "ok"}, nil
}

func (f *fakeSubs) last(t *testing.T) pipeline.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.got)
	return f.got[len(f.got)-1]
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.AppError {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	return resp.Error
}

func TestMux_Routes(t *testing.T) {
	subs := &fakeSubs{}
	mux := NewMux(Options{Subscriptions: subs})

	tests := []struct {
		path   string
		target render.Target
		tag    string
	}{
		{"/sub/abc", "", ""},
		{"/sub/abc/raw", render.TargetRaw, ""},
		{"/sub/abc/mihomo", render.TargetMihomo, ""},
		{"/sub/abc/Clash", render.TargetClash, ""},
		{"/sub/abc/stash", render.TargetStash, ""},
		{"/sub/abc/singbox", render.TargetSingBox, ""},
		{"/sub/abc/json", render.TargetXrayJSON, ""},
		{"/sub/abc/v2ray", render.TargetXrayBase64, ""},
		{"/sub/outline/abc/office", render.TargetOutline, "office"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.Header.Set("User-Agent", "test-agent")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d body=%q", tt.path, rr.Code, rr.Body.String())
		}
		got := subs.last(t)
		assert.Equal(t, "abc", got.ShortUUID, tt.path)
		assert.Equal(t, tt.target, got.Target, tt.path)
		assert.Equal(t, tt.tag, got.OutlineTag, tt.path)
		assert.Equal(t, "test-agent", got.Headers.Get("User-Agent"), tt.path)
	}
}

func TestMux_UnknownClient(t *testing.T) {
	mux := NewMux(Options{Subscriptions: &fakeSubs{}})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sub/abc/quanx", nil))

	if got, want := rr.Code, http.StatusNotFound; got != want {
		t.Fatalf("status = %d, want %d", got, want)
	}
	if code := decodeError(t, rr).Code; code != "UNSUPPORTED_CLIENT" {
		t.Fatalf("code = %q, want %q", code, "UNSUPPORTED_CLIENT")
	}
}

func TestMux_Healthz(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMux(Options{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok\n", rr.Body.String())

	down := NewMux(Options{Ready: func(context.Context) error { return errors.New("database is locked") }})
	rr = httptest.NewRecorder()
	down.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "NOT_READY", decodeError(t, rr).Code)
}
