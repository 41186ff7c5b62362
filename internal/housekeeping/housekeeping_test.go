package housekeeping

import (
	"sync"
	"testing"
	"time"

	"github.com/user/cistern/pkg/clock"
	"github.com/user/cistern/pkg/manager"
	"github.com/user/cistern/pkg/pinio"
	"github.com/user/cistern/pkg/xerr"
)

type recordingLogger struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingLogger) Info(msg string, keysAndValues ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *recordingLogger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSnapshotterRunsOnSchedule(t *testing.T) {
	mgr := manager.New(clock.NewSystem(), pinio.NewRegistry(), xerr.NewChannel())
	logger := &recordingLogger{}
	s := New(mgr, logger)

	if err := s.Start("@every 10ms"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for logger.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logger.count() == 0 {
		t.Fatal("expected at least one snapshot to run")
	}
}
