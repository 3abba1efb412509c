// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	strategyAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvremux_strategy_attempts_total",
		Help: "Ladder strategy attempts by strategy and outcome",
	}, []string{"strategy", "outcome"})

	audioRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvremux_audio_repairs_total",
		Help: "Zero-channel audio repair evaluations by phase and result",
	}, []string{"phase", "result"})

	supervisorStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvremux_supervisor_stops_total",
		Help: "Supervised operation terminations by reason",
	}, []string{"reason"})

	frameWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvremux_frame_warnings_total",
		Help: "Degraded remux results flagged for dropped or duplicated frames",
	}, []string{"kind"})
)

// IncStrategyAttempt records one ladder rung.
// strategy ∈ {decrypt_remux,native_extraction,backup_transcoder,legacy_byte_remux,generic_remux,unknown}
// outcome ∈ {success,failure,cancelled,unknown}
func IncStrategyAttempt(strategy, outcome string) {
	strategyAttemptsTotal.WithLabelValues(
		allow(strategy, "decrypt_remux", "native_extraction", "backup_transcoder", "legacy_byte_remux", "generic_remux"),
		allow(outcome, "success", "failure", "cancelled"),
	).Inc()
}

// IncAudioRepair records one repair evaluation.
// phase ∈ {source,output,exhausted,unknown}; result ∈ {adjusted,unchanged,no_candidate,unknown}
func IncAudioRepair(phase, result string) {
	audioRepairsTotal.WithLabelValues(
		allow(phase, "source", "output", "exhausted"),
		allow(result, "adjusted", "unchanged", "no_candidate"),
	).Inc()
}

// IncSupervisorStop records why a supervised operation ended.
// reason ∈ {completed,cancelled,runaway,hang_soft_stop,hang_error,failed,unknown}
func IncSupervisorStop(reason string) {
	supervisorStopsTotal.WithLabelValues(
		allow(reason, "completed", "cancelled", "runaway", "hang_soft_stop", "hang_error", "failed"),
	).Inc()
}

// IncFrameWarning records a degraded-success warning. kind ∈ {dropped,duplicated,unknown}
func IncFrameWarning(kind string) {
	frameWarningsTotal.WithLabelValues(allow(kind, "dropped", "duplicated")).Inc()
}

func allow(v string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return "unknown"
}
