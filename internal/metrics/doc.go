/*
Package metrics tracks the 14 operations named in pkg/types.AllOperations
plus cumulative byte throughput, on lock-free per-operation counters, and
periodically snapshots them into a Prometheus registry for scraping.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Namespace: "vfscore",
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

	start := time.Now()
	err = doOperation()
	collector.RecordOperation(types.OpRead, time.Since(start), err == nil)

RecordOperation is safe to call from any number of concurrent goroutines:
every field it touches is a sync/atomic counter, so the hot path never
blocks on a mutex held by the periodic Prometheus snapshot.

Exported metrics (namespace configurable, default "vfscore"):

  - vfscore_operations_total{operation,status}
  - vfscore_operation_duration_seconds{operation}
  - vfscore_operation_errors_total{operation}
  - vfscore_bytes_read_total / vfscore_bytes_written_total

See also internal/circuit for the breaker these counters would typically
be read alongside.
*/
package metrics
