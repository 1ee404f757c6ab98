package cmdlog

import (
	"stickytweets/internal/logging"
	"stickytweets/internal/metrics"
)

// Run executes a CLI command body, counting it and logging the result.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	err := f()
	if err != nil {
		metrics.IncCommandError(cmd)
		logging.Error(cmd+"_error", map[string]any{"error": err.Error()})
	} else {
		logging.Info(cmd+"_ok", nil)
	}
	return err
}
