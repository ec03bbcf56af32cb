package httpapi

import "net/http"

func NewMux(opt Options) *http.ServeMux {
	opt = opt.withDefaults()
	h := subHandler{opt: opt}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", opt.handleHealthz)
	mux.HandleFunc("GET /metrics", handleMetrics)
	mux.HandleFunc("GET /sub/{shortUuid}", h.handleSub)
	mux.HandleFunc("GET /sub/{shortUuid}/raw", h.handleRaw)
	mux.HandleFunc("GET /sub/{shortUuid}/{client}", h.handleClient)
	mux.HandleFunc("GET /sub/outline/{shortUuid}/{tag}", h.handleOutline)
	return mux
}
