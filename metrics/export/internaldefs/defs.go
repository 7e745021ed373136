package internaldefs

import (
	"github.com/MrEthical07/authclient"
)

// CounterDef names one client counter.
type CounterDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// HistogramDef names one client histogram.
type HistogramDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authclient.MetricRequest, Name: "authclient_requests_total", Help: "Requests sent with a bearer token."},
	{ID: authclient.MetricExpiryDetected, Name: "authclient_expiry_detected_total", Help: "First attempts answered with 401."},
	{ID: authclient.MetricRefreshStarted, Name: "authclient_refresh_started_total", Help: "Refresh calls started."},
	{ID: authclient.MetricRefreshSuccess, Name: "authclient_refresh_success_total", Help: "Refresh calls that produced a token."},
	{ID: authclient.MetricRefreshFailure, Name: "authclient_refresh_failure_total", Help: "Refresh calls that failed."},
	{ID: authclient.MetricRequestQueued, Name: "authclient_requests_queued_total", Help: "Requests that waited on an in-flight refresh."},
	{ID: authclient.MetricReplaySuccess, Name: "authclient_replay_success_total", Help: "Replays not answered with 401."},
	{ID: authclient.MetricReplayUnauthorized, Name: "authclient_replay_unauthorized_total", Help: "Replays answered with 401 again."},
	{ID: authclient.MetricStaleReplay, Name: "authclient_stale_replay_total", Help: "401s replayed with a token refreshed meanwhile."},
	{ID: authclient.MetricSessionExpired, Name: "authclient_session_expired_total", Help: "Sessions ended by an unrecoverable 401."},
	{ID: authclient.MetricLogout, Name: "authclient_logout_total", Help: "Authenticated sessions ended."},
	{ID: authclient.MetricRateLimitedLocal, Name: "authclient_rate_limited_local_total", Help: "Actions blocked by a local cooldown."},
	{ID: authclient.MetricRateLimitedRemote, Name: "authclient_rate_limited_remote_total", Help: "Actions answered with 429."},
	{ID: authclient.MetricRateLimitReset, Name: "authclient_rate_limit_reset_total", Help: "Cooldowns cleared by timer or reset."},
}

var HistogramDefs = []HistogramDef{
	{ID: authclient.MetricRefreshLatency, Name: "authclient_refresh_latency_seconds", Help: "Refresh call latency histogram."},
}

// HistogramBounds are the upper bounds of the refresh latency buckets.
var HistogramBounds = []string{
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable in instrument names.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// StateSource exposes live session and gate state. Exporters check for it
// with a type assertion; counter-only sources skip the state gauges.
type StateSource interface {
	IsAuthenticated() bool
	RateLimitState(action authclient.Action) authclient.RateLimitState
}

const (
	SessionGaugeName  = "authclient_session_authenticated"
	SessionGaugeHelp  = "1 while the client holds an access token."
	AttemptsGaugeName = "authclient_rate_limit_attempts"
	AttemptsGaugeHelp = "Attempts counted by the action gate in the current window."
	CooldownGaugeName = "authclient_rate_limit_cooldown"
	CooldownGaugeHelp = "1 while the action gate is cooling down."
	ActionLabel       = "action"
)

func BoolGauge(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
