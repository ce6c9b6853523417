package telemetry

import (
	"context"
	"sort"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys. Values must stay low-cardinality: queue and step names,
// never job or entity ids.
const (
	ProfilingLabelQueue        = "queue"
	ProfilingLabelPipelineStep = "pipeline_step"
	ProfilingLabelPlatform     = "platform"
)

// MaxLabelValueLength caps profiling label values
const MaxLabelValueLength = 128

// WithProfilingLabels runs fn with pprof labels attached, so CPU and allocation
// samples taken inside fn can be filtered by them in Pyroscope. Labels are
// harmless when profiling is disabled.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := labelPairs(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// labelPairs flattens labels into sorted key/value pairs, dropping empty entries
func labelPairs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		if k != "" && v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		v := labels[k]
		if len(v) > MaxLabelValueLength {
			v = v[:MaxLabelValueLength]
		}
		pairs = append(pairs, k, v)
	}
	return pairs
}
