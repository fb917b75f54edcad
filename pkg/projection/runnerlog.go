package projection

import (
	"context"
	"log/slog"

	"github.com/plaenen/projector/pkg/runner"
)

// NewRunnerLogger adapts a runner.Logger into the *slog.Logger that
// Repository, Resolver and RebuildWorker log through, so a caller already
// running a runner.Service fleet can route rebuild-worker and resolver
// logging into the same sink as every other service without this package
// depending on slog.Handler internals elsewhere.
func NewRunnerLogger(logger runner.Logger) *slog.Logger {
	return slog.New(&runnerHandler{logger: logger})
}

// runnerHandler is an slog.Handler that forwards records to a
// runner.Logger, keeping attributes as alternating key/value pairs the way
// runner.Logger's zap/logrus-style implementations expect.
type runnerHandler struct {
	logger runner.Logger
	attrs  []any
}

func (h *runnerHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *runnerHandler) Handle(_ context.Context, record slog.Record) error {
	kv := make([]any, 0, len(h.attrs)+record.NumAttrs()*2)
	kv = append(kv, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		kv = append(kv, a.Key, a.Value.Any())
		return true
	})

	switch {
	case record.Level >= slog.LevelError:
		h.logger.Error(record.Message, kv...)
	case record.Level >= slog.LevelInfo:
		h.logger.Info(record.Message, kv...)
	default:
		h.logger.Debug(record.Message, kv...)
	}
	return nil
}

func (h *runnerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	kv := make([]any, 0, len(h.attrs)+len(attrs)*2)
	kv = append(kv, h.attrs...)
	for _, a := range attrs {
		kv = append(kv, a.Key, a.Value.Any())
	}
	return &runnerHandler{logger: h.logger, attrs: kv}
}

func (h *runnerHandler) WithGroup(name string) slog.Handler {
	return h
}
