package builder

import "github.com/VictoriaMetrics/metrics"

var (
	buildsTotal      = metrics.NewCounter(`rtrd_builder_builds_total`)
	buildFailures    = metrics.NewCounter(`rtrd_builder_build_failures_total`)
	roasParsedTotal  = metrics.NewCounter(`rtrd_builder_roas_parsed_total`)
	roasSkippedTotal = metrics.NewCounter(`rtrd_builder_roas_skipped_total`)
	notifiedTotal    = metrics.NewCounter(`rtrd_builder_notified_total`)

	currentSerial    uint64
	retainedSnapshot uint64
	lastBuildSeconds float64
)

func init() {
	metrics.NewGauge(`rtrd_builder_current_serial`, func() float64 { return float64(currentSerial) })
	metrics.NewGauge(`rtrd_builder_retained_snapshots`, func() float64 { return float64(retainedSnapshot) })
	metrics.NewGauge(`rtrd_builder_last_build_duration_seconds`, func() float64 { return lastBuildSeconds })
}

// observeBuild records a completed Run in the process-wide metric set,
// exposed via the status sidecar's "/metrics" endpoint.
func observeBuild(res *Result) {
	buildsTotal.Inc()
	roasParsedTotal.Add(res.RoasParsed)
	roasSkippedTotal.Add(res.RoasSkipped)
	notifiedTotal.Add(res.Notified)
	currentSerial = uint64(res.Serial)
	retainedSnapshot = uint64(res.RetainedAfter)
	lastBuildSeconds = res.Duration.Seconds()
}

// observeFailure records a Run that returned before completion.
func observeFailure() {
	buildFailures.Inc()
}
