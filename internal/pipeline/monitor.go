package pipeline

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// movingAverageWindow is how many recent completions the ETA estimate is
// derived from, per the "moving average of the last 50 completions" rule.
const movingAverageWindow = 50

// Summary is the end-of-run tally the CLI prints; per-document failures
// counted here do not change the exit code.
type Summary struct {
	Discovered int
	Completed  int
	Failed     int
	Skipped    int
	Elapsed    time.Duration
}

// monitor tracks per-document completion latency and throughput for a
// single ingestion run, reporting through a Metrics sink as it goes.
type monitor struct {
	mu        sync.Mutex
	started   time.Time
	durations []time.Duration
	completed int
	failed    int
	skipped   int
	total     int
	metrics   Metrics
	docType   string
}

func newMonitor(total int, metrics Metrics, docType string) *monitor {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &monitor{started: time.Now(), total: total, metrics: metrics, docType: docType}
}

// Metrics is the subset of observability.Metrics the pipeline depends on,
// kept local so this package does not need to import observability just
// to accept its interface.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, map[string]string)                {}
func (NoopMetrics) ObserveHistogram(string, float64, map[string]string) {}

func (m *monitor) recordCompletion(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
	m.durations = append(m.durations, d)
	if len(m.durations) > movingAverageWindow {
		m.durations = m.durations[len(m.durations)-movingAverageWindow:]
	}
	m.metrics.IncCounter("pipeline.documents.completed", map[string]string{"doc_type": m.docType})
	m.metrics.ObserveHistogram("pipeline.document.duration_seconds", d.Seconds(), map[string]string{"doc_type": m.docType})

	done := m.completed + m.failed + m.skipped
	elapsed := time.Since(m.started)
	var throughput float64
	if elapsed > 0 {
		throughput = float64(m.completed) / elapsed.Seconds()
	}
	log.Info().
		Str("doc_type", m.docType).
		Int("done", done).
		Int("total", m.total).
		Dur("elapsed", elapsed).
		Float64("docs_per_second", throughput).
		Dur("eta", m.etaLocked()).
		Msg("ingestion progress")
}

func (m *monitor) recordFailure() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
	m.metrics.IncCounter("pipeline.documents.failed", map[string]string{"doc_type": m.docType})
}

func (m *monitor) recordSkip() {
	m.mu.Lock()
	m.skipped++
	m.mu.Unlock()
	m.metrics.IncCounter("pipeline.documents.skipped", map[string]string{"doc_type": m.docType})
}

// eta returns the estimated time remaining, based on the moving average
// of the last movingAverageWindow completion durations.
func (m *monitor) eta() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.etaLocked()
}

func (m *monitor) etaLocked() time.Duration {
	done := m.completed + m.failed + m.skipped
	remaining := m.total - done
	if remaining <= 0 || len(m.durations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range m.durations {
		sum += d
	}
	avg := sum / time.Duration(len(m.durations))
	return avg * time.Duration(remaining)
}

func (m *monitor) summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Summary{
		Discovered: m.total,
		Completed:  m.completed,
		Failed:     m.failed,
		Skipped:    m.skipped,
		Elapsed:    time.Since(m.started),
	}
}
