package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

func (o Options) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if o.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := o.Ready(ctx); err != nil {
			WriteError(w, http.StatusServiceUnavailable, model.AppError{
				Code:    "NOT_READY",
				Message: "服务未就绪",
				Stage:   "healthz",
				Hint:    err.Error(),
			})
			return
		}
	}
	WriteText(w, http.StatusOK, "ok\n")
}
