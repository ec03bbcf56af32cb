package httpapi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/subresponse-go/internal/pipeline"
)

// Subscriptions renders one subscription request.
type Subscriptions interface {
	Serve(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Options controls HTTP API runtime behavior.
type Options struct {
	Subscriptions Subscriptions

	// Ready backs /healthz; nil means always ready.
	Ready func(ctx context.Context) error

	// RequestTimeout bounds a single subscription request, remote template
	// fetches included.
	RequestTimeout time.Duration

	ProfileTitle        string
	UpdateIntervalHours int
	SupportURL          string

	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.UpdateIntervalHours <= 0 {
		o.UpdateIntervalHours = 12
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.Logger = l
	}
	return o
}
