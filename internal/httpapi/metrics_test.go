package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/John-Robertt/subresponse-go/internal/model"
	"github.com/John-Robertt/subresponse-go/internal/pipeline"
	"github.com/John-Robertt/subresponse-go/internal/render"
)

func TestMetrics_CountsRequestsAndErrors(t *testing.T) {
	metrics = newMetricsStore()
	subs := &fakeSubs{res: &pipeline.Result{
		ResponseType: model.ResponseClash,
		Target:       render.TargetClash,
		ContentType:  "text/yaml",
		Body:         "proxies: []\n",
		Skipped:      []model.SkippedHost{{HostID: 1}, {HostID: 2}},
	}}
	h := NewHandler(Options{Subscriptions: subs})

	// 1) ok request
	{
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 2) subscription
	{
		req := httptest.NewRequest(http.MethodGet, "/sub/abc", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("sub status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 3) error request
	{
		req := httptest.NewRequest(http.MethodGet, "/sub/abc/quanx", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("sub status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 4) metrics snapshot (the /metrics request itself isn't counted inside its own response).
	{
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("metrics status=%d body=%q", rr.Code, rr.Body.String())
		}

		body := rr.Body.String()
		for _, want := range []string{
			"subresponse_http_requests_total 3\n",
			`pattern="GET /healthz",status="200"} 1`,
			`pattern="GET /sub/{shortUuid}",status="200"} 1`,
			`pattern="GET /sub/{shortUuid}/{client}",status="404"} 1`,
			`subresponse_app_errors_total{stage="validate_request",code="UNSUPPORTED_CLIENT"} 1`,
			`subresponse_subscriptions_total{response_type="CLASH",target="clash"} 1`,
			"subresponse_skipped_hosts_total 2\n",
		} {
			if !strings.Contains(body, want) {
				t.Fatalf("metrics body missing %q, got:\n%s", want, body)
			}
		}
	}
}
