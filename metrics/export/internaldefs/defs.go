package internaldefs

import (
	goAdmin "github.com/MrEthical07/goAdmin"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goAdmin.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goAdmin.MetricID
	Name string
	Help string
}

// CounterDefs is the stable export order of every client counter.
var CounterDefs = []CounterDef{
	{ID: goAdmin.MetricRequestIssued, Name: "goadmin_request_issued_total", Help: "Requests passed to the client."},
	{ID: goAdmin.MetricRequestSucceeded, Name: "goadmin_request_succeeded_total", Help: "Requests that ended with a success status."},
	{ID: goAdmin.MetricNetworkFailure, Name: "goadmin_network_failure_total", Help: "Requests that never received a response."},
	{ID: goAdmin.MetricStatusFailure, Name: "goadmin_status_failure_total", Help: "Requests that ended with a non-authorization error status."},
	{ID: goAdmin.MetricAuthFailure, Name: "goadmin_auth_failure_total", Help: "Authorization-failure responses received."},
	{ID: goAdmin.MetricRenewalStarted, Name: "goadmin_renewal_started_total", Help: "Session renewals started."},
	{ID: goAdmin.MetricRenewalSucceeded, Name: "goadmin_renewal_succeeded_total", Help: "Session renewals that succeeded."},
	{ID: goAdmin.MetricRenewalFailed, Name: "goadmin_renewal_failed_total", Help: "Session renewals that failed."},
	{ID: goAdmin.MetricRenewalTimeout, Name: "goadmin_renewal_timeout_total", Help: "Session renewals that timed out."},
	{ID: goAdmin.MetricWaiterQueued, Name: "goadmin_waiter_queued_total", Help: "Requests held behind an in-flight renewal."},
	{ID: goAdmin.MetricQueueOverflow, Name: "goadmin_queue_overflow_total", Help: "Requests refused because the renewal queue was full."},
	{ID: goAdmin.MetricReplay, Name: "goadmin_replay_total", Help: "Requests replayed after a successful renewal."},
	{ID: goAdmin.MetricReplayFailure, Name: "goadmin_replay_failure_total", Help: "Replays rejected with an authorization status."},
	{ID: goAdmin.MetricForcedLogout, Name: "goadmin_forced_logout_total", Help: "Forced logouts after failed renewal."},
	{ID: goAdmin.MetricLogin, Name: "goadmin_login_total", Help: "Successful logins."},
	{ID: goAdmin.MetricLogout, Name: "goadmin_logout_total", Help: "Logouts."},
}

// HistogramDefs is the stable export order of every client histogram.
var HistogramDefs = []HistogramDef{
	{ID: goAdmin.MetricRenewalLatency, Name: "goadmin_renewal_latency_seconds", Help: "Session renewal latency histogram."},
}

// HistogramBounds are the upper bounds of the eight renewal buckets, in seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable inside instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight bucket array, padding with zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
