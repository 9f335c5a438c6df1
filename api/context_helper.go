package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/linesmerrill/commute-permit-api/config"
)

var queryTimeout atomic.Int64

func init() {
	queryTimeout.Store(int64(config.DefaultQueryTimeout))
}

// SetQueryTimeout changes the budget of WithQueryTimeout. Non-positive
// values are ignored.
func SetQueryTimeout(d time.Duration) {
	if d > 0 {
		queryTimeout.Store(int64(d))
	}
}

// QueryTimeout is the budget a handler gets for its record store calls
func QueryTimeout() time.Duration {
	return time.Duration(queryTimeout.Load())
}

// WithQueryTimeout bounds parent by QueryTimeout. An earlier deadline on
// parent, such as the request timeout, still wins.
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout())
}
