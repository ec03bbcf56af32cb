package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/John-Robertt/subresponse-go/internal/pipeline"
)

// metricsStore holds a few counters rendered in the Prometheus text format.
type metricsStore struct {
	mu sync.Mutex

	httpRequestsTotal uint64
	httpByPattern     map[reqKey]uint64

	appErrors map[errKey]uint64

	responses    map[respKey]uint64
	skippedHosts uint64
}

type reqKey struct {
	Pattern string
	Status  int
}

type errKey struct {
	Stage string
	Code  string
}

type respKey struct {
	ResponseType string
	Target       string
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		httpByPattern: make(map[reqKey]uint64),
		appErrors:     make(map[errKey]uint64),
		responses:     make(map[respKey]uint64),
	}
}

var metrics = newMetricsStore()

func metricsIncRequest(pattern string, status int) {
	if status == 0 {
		status = http.StatusOK
	}
	if pattern == "" {
		pattern = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.httpRequestsTotal++
	metrics.httpByPattern[reqKey{Pattern: pattern, Status: status}]++
	metrics.mu.Unlock()
}

func metricsIncAppError(stage, code string) {
	stage = strings.TrimSpace(stage)
	code = strings.TrimSpace(code)
	if stage == "" {
		stage = "(unknown)"
	}
	if code == "" {
		code = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.appErrors[errKey{Stage: stage, Code: code}]++
	metrics.mu.Unlock()
}

// metricsIncResponse counts a served subscription by response type and
// generator target. Explicit endpoints have no response type.
func metricsIncResponse(res *pipeline.Result) {
	k := respKey{ResponseType: string(res.ResponseType), Target: string(res.Target)}
	if k.ResponseType == "" {
		k.ResponseType = "(explicit)"
	}
	if k.Target == "" {
		k.Target = "(none)"
	}

	metrics.mu.Lock()
	metrics.responses[k]++
	metrics.skippedHosts += uint64(len(res.Skipped))
	metrics.mu.Unlock()
}

type reqMetric struct {
	reqKey
	N uint64
}

type errMetric struct {
	errKey
	N uint64
}

type respMetric struct {
	respKey
	N uint64
}

type snapshot struct {
	httpTotal    uint64
	reqs         []reqMetric
	errs         []errMetric
	resps        []respMetric
	skippedHosts uint64
}

func metricsSnapshot() snapshot {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	snap := snapshot{httpTotal: metrics.httpRequestsTotal, skippedHosts: metrics.skippedHosts}

	snap.reqs = make([]reqMetric, 0, len(metrics.httpByPattern))
	for k, n := range metrics.httpByPattern {
		snap.reqs = append(snap.reqs, reqMetric{reqKey: k, N: n})
	}
	snap.errs = make([]errMetric, 0, len(metrics.appErrors))
	for k, n := range metrics.appErrors {
		snap.errs = append(snap.errs, errMetric{errKey: k, N: n})
	}
	snap.resps = make([]respMetric, 0, len(metrics.responses))
	for k, n := range metrics.responses {
		snap.resps = append(snap.resps, respMetric{respKey: k, N: n})
	}

	sort.Slice(snap.reqs, func(i, j int) bool {
		if snap.reqs[i].Pattern != snap.reqs[j].Pattern {
			return snap.reqs[i].Pattern < snap.reqs[j].Pattern
		}
		return snap.reqs[i].Status < snap.reqs[j].Status
	})
	sort.Slice(snap.errs, func(i, j int) bool {
		if snap.errs[i].Stage != snap.errs[j].Stage {
			return snap.errs[i].Stage < snap.errs[j].Stage
		}
		return snap.errs[i].Code < snap.errs[j].Code
	})
	sort.Slice(snap.resps, func(i, j int) bool {
		if snap.resps[i].ResponseType != snap.resps[j].ResponseType {
			return snap.resps[i].ResponseType < snap.resps[j].ResponseType
		}
		return snap.resps[i].Target < snap.resps[j].Target
	})
	return snap
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	snap := metricsSnapshot()

	var b strings.Builder

	b.WriteString("# HELP subresponse_http_requests_total Total HTTP requests.\n")
	b.WriteString("# TYPE subresponse_http_requests_total counter\n")
	b.WriteString("subresponse_http_requests_total ")
	b.WriteString(strconv.FormatUint(snap.httpTotal, 10))
	b.WriteByte('\n')

	b.WriteString("# HELP subresponse_http_requests_by_pattern_total HTTP requests by ServeMux pattern and status.\n")
	b.WriteString("# TYPE subresponse_http_requests_by_pattern_total counter\n")
	for _, m := range snap.reqs {
		b.WriteString("subresponse_http_requests_by_pattern_total{pattern=\"")
		b.WriteString(promLabelEscape(m.Pattern))
		b.WriteString("\",status=\"")
		b.WriteString(strconv.Itoa(m.Status))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(m.N, 10))
		b.WriteByte('\n')
	}

	b.WriteString("# HELP subresponse_app_errors_total Application errors returned to clients.\n")
	b.WriteString("# TYPE subresponse_app_errors_total counter\n")
	for _, m := range snap.errs {
		b.WriteString("subresponse_app_errors_total{stage=\"")
		b.WriteString(promLabelEscape(m.Stage))
		b.WriteString("\",code=\"")
		b.WriteString(promLabelEscape(m.Code))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(m.N, 10))
		b.WriteByte('\n')
	}

	b.WriteString("# HELP subresponse_subscriptions_total Subscriptions served by response type and target.\n")
	b.WriteString("# TYPE subresponse_subscriptions_total counter\n")
	for _, m := range snap.resps {
		b.WriteString("subresponse_subscriptions_total{response_type=\"")
		b.WriteString(promLabelEscape(m.ResponseType))
		b.WriteString("\",target=\"")
		b.WriteString(promLabelEscape(m.Target))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(m.N, 10))
		b.WriteByte('\n')
	}

	b.WriteString("# HELP subresponse_skipped_hosts_total Hosts left out of rendered subscriptions.\n")
	b.WriteString("# TYPE subresponse_skipped_hosts_total counter\n")
	b.WriteString("subresponse_skipped_hosts_total ")
	b.WriteString(strconv.FormatUint(snap.skippedHosts, 10))
	b.WriteByte('\n')

	_, _ = fmt.Fprint(w, b.String())
}

func promLabelEscape(s string) string {
	// Prometheus label value escaping: backslash and double quote.
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
