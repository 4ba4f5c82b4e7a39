package metrics

import (
	"context"
	"testing"
	"time"

	vfserrors "github.com/objectfs/vfscore/pkg/errors"
	"github.com/objectfs/vfscore/pkg/types"
)

func TestNewCollectorDefaults(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector(nil) error = %v", err)
	}
	if c.config.Path != "/metrics" {
		t.Errorf("default path = %q, want /metrics", c.config.Path)
	}
	if c.config.Namespace != "vfscore" {
		t.Errorf("default namespace = %q, want vfscore", c.config.Namespace)
	}
	if len(c.ops) != len(types.AllOperations) {
		t.Errorf("ops tracked = %d, want %d", len(c.ops), len(types.AllOperations))
	}
}

func TestNewCollectorDisabledSkipsRegistry(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	if c.registry != nil {
		t.Error("disabled collector should not build a Prometheus registry")
	}
	// Per-op counters still work even with exposition disabled.
	c.RecordOperation(types.OpRead, 10*time.Millisecond, true)
	snap := c.Snapshot()[types.OpRead]
	if snap.Count != 1 {
		t.Errorf("Count = %d, want 1", snap.Count)
	}
}

func TestRecordOperationAccumulates(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	c.RecordOperation(types.OpRead, 100*time.Millisecond, true)
	c.RecordOperation(types.OpRead, 300*time.Millisecond, true)
	c.RecordOperation(types.OpRead, 50*time.Millisecond, false)

	snap := c.Snapshot()[types.OpRead]
	if snap.Count != 3 {
		t.Errorf("Count = %d, want 3", snap.Count)
	}
	if snap.Successes != 2 {
		t.Errorf("Successes = %d, want 2", snap.Successes)
	}
	if snap.Failures != 1 {
		t.Errorf("Failures = %d, want 1", snap.Failures)
	}
	if snap.MaxLatency != 300*time.Millisecond {
		t.Errorf("MaxLatency = %v, want 300ms", snap.MaxLatency)
	}
	if snap.TotalLatency != 450*time.Millisecond {
		t.Errorf("TotalLatency = %v, want 450ms", snap.TotalLatency)
	}
}

func TestRecordOperationUnknownOpIsIgnored(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	// Should not panic even though "bogus" isn't in types.AllOperations.
	c.RecordOperation(types.OperationName("bogus"), time.Millisecond, true)
}

func TestRecordBytes(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	c.RecordBytesRead(1024)
	c.RecordBytesRead(512)
	c.RecordBytesWritten(2048)

	if got := c.bytesRead.Load(); got != 1536 {
		t.Errorf("bytesRead = %d, want 1536", got)
	}
	if got := c.bytesWritten.Load(); got != 2048 {
		t.Errorf("bytesWritten = %d, want 2048", got)
	}
}

func TestUpdatePeriodicMetricsPushesDeltasOnly(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: true, Port: 19090, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	c.RecordOperation(types.OpWrite, time.Millisecond, true)
	c.updatePeriodicMetrics()
	first := c.lastSnapshot[types.OpWrite]
	if first.Count != 1 {
		t.Fatalf("Count after first tick = %d, want 1", first.Count)
	}

	c.RecordOperation(types.OpWrite, time.Millisecond, true)
	c.updatePeriodicMetrics()
	second := c.lastSnapshot[types.OpWrite]
	if second.Count != 2 {
		t.Fatalf("Count after second tick = %d, want 2", second.Count)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: true, Port: 19091, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("Stop() without Start() error = %v, want nil", err)
	}
}

func TestGuardedOperationFeedsErrUnavailableAsFailure(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	guardErr := vfserrors.New(vfserrors.ErrUnavailable, "/mnt/a", "breaker open")
	c.RecordOperation(types.OpRead, time.Millisecond, guardErr == nil)

	snap := c.Snapshot()[types.OpRead]
	if snap.Failures != 1 {
		t.Errorf("Failures = %d, want 1", snap.Failures)
	}
}
