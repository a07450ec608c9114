package worker

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("GEMINICHAT_WORKER_DEBUG"), "1")

// workerLogger scopes base to the worker package. Dispatch traces are only
// emitted when GEMINICHAT_WORKER_DEBUG=1.
func workerLogger(base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	l := base.Named("worker")
	if !workerDebugEnabled && l.Core().Enabled(zap.DebugLevel) {
		l = l.WithOptions(zap.IncreaseLevel(zap.InfoLevel))
	}
	return l
}
