package httpapi

import (
	_ "embed"
	"net/http"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

//go:embed ui/index.html
var uiIndexHTML []byte

// writeBrowserPage answers BROWSER responses: people opening a subscription
// link in a web browser get a page instead of a config file.
func writeBrowserPage(w http.ResponseWriter, headers []model.HeaderKV) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	applyRuleHeaders(w, headers)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(uiIndexHTML)
}
