package anomaly

import (
	"context"
	"errors"
	"sync"

	logger "log/slog"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/indexing/metrics"
)

// Reporter receives anomalies found while building a snapshot.
type Reporter interface {
	// Report delivers one batch of anomalies.
	Report(ctx context.Context, anomalies []domain.Anomaly) error
}

// LogReporter writes each anomaly as a structured warning and counts it.
type LogReporter struct {
	log *logger.Logger
}

// NewLogReporter creates a reporter logging through log, or slog.Default when nil.
func NewLogReporter(log *logger.Logger) *LogReporter {
	if log == nil {
		log = logger.Default()
	}
	return &LogReporter{log: log.With("component", "anomaly")}
}

func (r *LogReporter) Report(ctx context.Context, anomalies []domain.Anomaly) error {
	for _, a := range anomalies {
		metrics.AnomaliesTotal.WithLabelValues(string(a.Kind)).Inc()
		r.log.WarnContext(ctx, "event anomaly",
			"kind", a.Kind,
			"event", a.Event.Kind,
			"entity", a.Event.EntityID,
			"block", a.Event.BlockNumber,
			"log_index", a.Event.LogIndex,
			"reason", a.Reason,
		)
	}
	return nil
}

// Recorder keeps the most recent anomalies in memory.
type Recorder struct {
	mu    sync.Mutex
	size  int
	items []domain.Anomaly
}

// NewRecorder creates a recorder keeping at most size anomalies.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 100
	}
	return &Recorder{size: size}
}

func (r *Recorder) Report(_ context.Context, anomalies []domain.Anomaly) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, anomalies...)
	if over := len(r.items) - r.size; over > 0 {
		r.items = append([]domain.Anomaly(nil), r.items[over:]...)
	}
	return nil
}

// Recent returns a copy of the kept anomalies, oldest first.
func (r *Recorder) Recent() []domain.Anomaly {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Anomaly, len(r.items))
	copy(out, r.items)
	return out
}

// Multi fans a batch out to several reporters and joins their errors.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, anomalies []domain.Anomaly) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, anomalies); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Report(context.Context, []domain.Anomaly) error { return nil }
