package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/expiration"
)

// ExpirationMonitor is the monitoring job used by the handlers
type ExpirationMonitor interface {
	Summary(ctx context.Context) (expiration.Summary, error)
	Run(ctx context.Context) (expiration.RunResult, error)
}

// Expiration exists for dependency injection
type Expiration struct {
	Monitor ExpirationMonitor
	Timeout time.Duration
}

func (e Expiration) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = config.DefaultMonitorTimeout
	}
	// the run outlives a client that disconnects mid request
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}

// SummaryHandler returns the counts of expiring and expired documents
// without sending anything. It is bound by the request timeout.
func (e Expiration) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := e.Monitor.Summary(r.Context())
	if err != nil {
		config.ErrorStatus("failed to get expiration summary", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// RunHandler runs the monitoring job now
func (e Expiration) RunHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := e.context(r.Context())
	defer cancel()

	result, err := e.Monitor.Run(ctx)
	if errors.Is(err, expiration.ErrRunInProgress) {
		config.ErrorStatus("expiration check not started", http.StatusConflict, w, err)
		return
	}
	if err != nil {
		config.ErrorStatus("failed to run expiration check", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Infow("expiration check triggered over http",
		"path", r.URL.Path,
		"sent", result.Sent,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	writeJSON(w, http.StatusOK, result)
}
