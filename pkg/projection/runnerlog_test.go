package projection_test

import (
	"context"
	"sync"
	"testing"

	"github.com/plaenen/projector/pkg/projection"
)

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
	errs  []string
}

func (r *recordingLogger) Info(msg string, _ ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, msg)
}

func (r *recordingLogger) Error(msg string, _ ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

func (r *recordingLogger) Debug(msg string, _ ...interface{}) {}

func TestRunnerLoggerRoutesByLevel(t *testing.T) {
	rec := &recordingLogger{}
	logger := projection.NewRunnerLogger(rec)

	logger.InfoContext(context.Background(), "hello")
	logger.ErrorContext(context.Background(), "boom")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.infos) != 1 || rec.infos[0] != "hello" {
		t.Fatalf("expected one info record, got %v", rec.infos)
	}
	if len(rec.errs) != 1 || rec.errs[0] != "boom" {
		t.Fatalf("expected one error record, got %v", rec.errs)
	}
}
