package provider

import (
	"context"
	"errors"
	"time"

	"github.com/nodadyoushutup/llmctl-engine/internal/enginerr"
	"github.com/nodadyoushutup/llmctl-engine/internal/retrypolicy"
)

// Classifier maps a provider error to a stable enginerr error code. Each
// Adapter's SDK wraps its own transport errors in whatever shape it
// likes, so classification is pluggable per adapter rather than
// sniffed from error string text.
type Classifier func(err error) (code string, retryableSameProvider bool)

// Router selects the node's configured adapter and implements spec
// §4.3's single-retry-same-provider policy for the narrow
// {timeout, provider_unavailable, auth} error class, generalized from
// internal/dispatch/backoff.go's BackoffDelay jittered-exponential shape
// via internal/retrypolicy's fixed 0.5s/2s/8s ladder.
type Router struct {
	adapters   map[string]Adapter
	classifier Classifier
	sleep      func(time.Duration)
}

// NewRouter builds a Router over the given named adapters. classifier
// may be nil, in which case DefaultClassifier is used.
func NewRouter(adapters map[string]Adapter, classifier Classifier) *Router {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &Router{adapters: adapters, classifier: classifier, sleep: time.Sleep}
}

// DefaultClassifier treats every error as non-retryable unless the
// Adapter wraps it in a *enginerr.Error carrying one of the three
// retryable-same-provider codes.
func DefaultClassifier(err error) (string, bool) {
	var engErr *enginerr.Error
	if errors.As(err, &engErr) {
		switch engErr.Code {
		case enginerr.CodeProviderTimeout, enginerr.CodeProviderUnavailable, enginerr.CodeProviderAuth:
			return engErr.Code, true
		}
		return engErr.Code, false
	}
	return enginerr.CodeInternal, false
}

// Execute dispatches req to providerName's Adapter. On a classified
// retryable error it retries once, same provider, after a single
// jittered backoff delay drawn from retrypolicy's first rung.
func (r *Router) Execute(ctx context.Context, providerName string, req Request) (Result, error) {
	adapter, ok := r.adapters[providerName]
	if !ok {
		return Result{}, enginerr.New(enginerr.CodeValidation, "provider: unknown adapter "+providerName, false)
	}

	result, err := adapter.Execute(ctx, req)
	if err == nil {
		return result, nil
	}

	code, retryable := r.classifier(err)
	if !retryable {
		return Result{}, err
	}

	delay, ok := retrypolicy.Delay(1)
	if ok {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		r.sleep(delay)
	}

	result, err = adapter.Execute(ctx, req)
	// Per spec §4.3 step 2 / §7, the retry itself is the fallback: record
	// it whether or not the retry ultimately succeeded so the caller can
	// surface fallback_attempted/fallback_reason and compute degraded.
	reason := code
	switch code {
	case enginerr.CodeProviderTimeout:
		reason = "timeout"
	case enginerr.CodeProviderAuth:
		reason = "auth"
	}
	result.FallbackAttempted = true
	result.FallbackReason = reason
	return result, err
}
