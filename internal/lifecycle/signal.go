package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"
)

// AwaitShutdown blocks until ctx is done (typically a context built with
// signal.NotifyContext watching SIGINT/SIGTERM), then runs cleanupFuncs in
// order under a bounded timeout. It is the outer, process-level half of
// graceful shutdown: once the signal arrives, the sequencing Manager.Stop
// already does for a bus client's own transports and hooks is one of the
// cleanup funcs passed in here.
//
// A zero timeout defaults to 25s, leaving a 5s buffer before Kubernetes'
// default 30s terminationGracePeriodSeconds escalates to SIGKILL. A nil
// logger falls back to log.Default().
func AwaitShutdown(ctx context.Context, timeout time.Duration, logger *log.Logger, cleanupFuncs ...func(context.Context) error) error {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	<-ctx.Done()
	logger.Println("INFO: shutdown signal received, starting graceful shutdown")

	cleanupCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errsOut []error
	for i, fn := range cleanupFuncs {
		logger.Printf("INFO: running shutdown step %d/%d", i+1, len(cleanupFuncs))
		if err := fn(cleanupCtx); err != nil {
			logger.Printf("ERROR: shutdown step %d failed: %v", i+1, err)
			errsOut = append(errsOut, fmt.Errorf("step %d: %w", i+1, err))
		}
	}

	if cleanupCtx.Err() == context.DeadlineExceeded {
		logger.Printf("ERROR: shutdown timeout exceeded (%v)", timeout)
		errsOut = append(errsOut, fmt.Errorf("shutdown timeout exceeded: %w", cleanupCtx.Err()))
	}

	if len(errsOut) == 0 {
		logger.Println("INFO: graceful shutdown completed successfully")
		return nil
	}

	logger.Printf("ERROR: graceful shutdown completed with %d error(s)", len(errsOut))
	return joinErrors(errsOut)
}
