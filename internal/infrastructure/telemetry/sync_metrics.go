package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Token refresh results
const (
	RefreshExchanged    = "exchanged"
	RefreshReused       = "reused"
	RefreshDeduplicated = "deduplicated"
	RefreshFailed       = "failed"
)

// SyncMetrics records sync engine activity. A nil *SyncMetrics is valid and records nothing,
// so components can take it as an optional dependency.
type SyncMetrics struct {
	conflicts      *Counter
	writes         *Counter
	echoes         *Counter
	pipelineSteps  *Histogram
	tokenRefreshes *Counter
}

// NewSyncMetrics creates the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	var (
		m   SyncMetrics
		err error
	)
	if m.conflicts, err = NewCounter(meter, "sync_conflicts_total",
		"Field conflicts detected inside the conflict window", "{conflicts}"); err != nil {
		return nil, err
	}
	if m.writes, err = NewCounter(meter, "sync_writes_total",
		"Resolved incoming writes by entity type and origin", "{writes}"); err != nil {
		return nil, err
	}
	if m.echoes, err = NewCounter(meter, "sync_echoes_skipped_total",
		"Incoming events dropped as echoes of our own writes", "{events}"); err != nil {
		return nil, err
	}
	if m.pipelineSteps, err = NewHistogram(meter, "sync_pipeline_step_duration_seconds",
		"Duration of onboarding pipeline steps", StepDurationBuckets); err != nil {
		return nil, err
	}
	if m.tokenRefreshes, err = NewCounter(meter, "sync_token_refresh_total",
		"Credential refresh calls by result", "{calls}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordConflict counts one field conflict
func (m *SyncMetrics) RecordConflict(ctx context.Context, entityType, category, outcome string) {
	if m == nil {
		return
	}
	m.conflicts.Inc(ctx, AttrEntityType.String(entityType), AttrCategory.String(category), AttrOutcome.String(outcome))
}

// RecordWrite counts one applied change set
func (m *SyncMetrics) RecordWrite(ctx context.Context, entityType, origin string) {
	if m == nil {
		return
	}
	m.writes.Inc(ctx, AttrEntityType.String(entityType), AttrOrigin.String(origin))
}

// RecordEcho counts one skipped echo
func (m *SyncMetrics) RecordEcho(ctx context.Context, entityType string) {
	if m == nil {
		return
	}
	m.echoes.Inc(ctx, AttrEntityType.String(entityType))
}

// RecordPipelineStep records how long a step ran and how it ended
func (m *SyncMetrics) RecordPipelineStep(ctx context.Context, step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineSteps.RecordDuration(ctx, d, AttrStep.String(step), AttrStatus.String(status))
}

// RecordTokenRefresh counts one refresh call by result
func (m *SyncMetrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.Inc(ctx, AttrResult.String(result))
}

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = &MetricsError{Op: "NewSyncMetrics", Err: "meter cannot be nil"}

// MetricsError describes a failure to build instruments
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
