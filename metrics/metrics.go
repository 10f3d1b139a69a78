// Package metrics exposes Prometheus instrumentation for the chat pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counts the pipeline's externally observable activity.
type Pipeline struct {
	TurnsSubmitted    prometheus.Counter
	FragmentsReceived prometheus.Counter
	TurnsCompleted    prometheus.Counter
	TurnsStalled      prometheus.Counter
	TurnsDiscarded    prometheus.Counter
	AudioAttached     prometheus.Counter
	UploadFailures    prometheus.Counter
	CapturesFinalized prometheus.Counter
}

// NewPipeline registers the pipeline collectors with the given registerer.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		TurnsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_turns_submitted_total",
			Help: "User turns submitted to the backend",
		}),
		FragmentsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_fragments_received_total",
			Help: "Assistant reply fragments received",
		}),
		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_turns_completed_total",
			Help: "Assistant turns finalized",
		}),
		TurnsStalled: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_turns_stalled_total",
			Help: "Assistant turns abandoned after the idle timeout",
		}),
		TurnsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_turns_discarded_total",
			Help: "Partial assistant turns discarded on disconnect",
		}),
		AudioAttached: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_audio_attached_total",
			Help: "Synthesized audio buffers attached to transcript entries",
		}),
		UploadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_upload_failures_total",
			Help: "Failed audio uploads to the transcription endpoint",
		}),
		CapturesFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_captures_finalized_total",
			Help: "Recording sessions finalized with audio",
		}),
	}
}
