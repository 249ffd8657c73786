package shutdown

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

type Step struct {
	Name string
	Fn   func(context.Context) error
}

// Run executes the steps in order, each bounded by timeout. A failing step is
// logged and does not stop the ones after it.
func Run(log *slog.Logger, timeout time.Duration, steps ...Step) {
	for _, s := range steps {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.Fn(ctx); err != nil {
			log.Error("shutdown step failed", "step", s.Name, "err", err)
		} else {
			log.Info("shutdown step done", "step", s.Name)
		}
		cancel()
	}
}
