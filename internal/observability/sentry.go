// Package observability wires error reporting for the audit service.
package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/declinewatch/declinewatch-go/internal/config"
)

const flushFallback = 2 * time.Second

// InitSentry starts the Sentry SDK. Disabled config or a missing DSN is a
// silent no-op so local runs never need a project set up.
func InitSentry(cfg config.SentryConfig, fallbackRelease, fallbackEnv string) error {
	if !cfg.Enabled || cfg.DSN == "" {
		return nil
	}

	release := cfg.Release
	if release == "" {
		release = fallbackRelease
	}
	environment := cfg.Environment
	if environment == "" {
		environment = fallbackEnv
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          release,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return err
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("service", "declinewatch")
	})
	return nil
}

// Flush drains buffered events, honouring the context deadline when one is
// set.
func Flush(ctx context.Context) {
	timeout := flushFallback
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout < 0 {
			timeout = 0
		}
	}
	sentry.Flush(timeout)
}

// CaptureException reports err, preferring the request-scoped hub so the
// event carries the HTTP context the middleware attached.
func CaptureException(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
