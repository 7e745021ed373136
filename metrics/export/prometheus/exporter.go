package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() authclient.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders client metrics on demand.
type PrometheusExporter struct {
	source metricsSource
}

func NewPrometheusExporter(client *authclient.Client) *PrometheusExporter {
	return &PrometheusExporter{source: client}
}

// NewPrometheusExporterFromSource reads from any value with the client's
// MetricsSnapshot and AuditDropped methods.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render over HTTP.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics. Counter-only sources render nothing
// until something was recorded; a live client always reports session and
// gate state.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	state, hasState := p.source.(internaldefs.StateSource)
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 && !hasState {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	writeCounter(&b, "authclient_audit_dropped_total", "Audit events lost to dispatcher backpressure.", dropped)

	if hasState {
		writeState(&b, state)
	}

	return b.String()
}

func writeState(b *strings.Builder, state internaldefs.StateSource) {
	writeHeader(b, internaldefs.SessionGaugeName, internaldefs.SessionGaugeHelp, "gauge")
	writeSample(b, internaldefs.SessionGaugeName, "", internaldefs.BoolGauge(state.IsAuthenticated()))

	states := make([]authclient.RateLimitState, len(authclient.Actions))
	for i, action := range authclient.Actions {
		states[i] = state.RateLimitState(action)
	}

	writeHeader(b, internaldefs.AttemptsGaugeName, internaldefs.AttemptsGaugeHelp, "gauge")
	for i, action := range authclient.Actions {
		writeSample(b, internaldefs.AttemptsGaugeName, string(action), int64(states[i].Attempts))
	}
	writeHeader(b, internaldefs.CooldownGaugeName, internaldefs.CooldownGaugeHelp, "gauge")
	for i, action := range authclient.Actions {
		writeSample(b, internaldefs.CooldownGaugeName, string(action), internaldefs.BoolGauge(states[i].Cooldown))
	}
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name, action string, value int64) {
	b.WriteString(name)
	if action != "" {
		b.WriteString("{" + internaldefs.ActionLabel + "=\"")
		b.WriteString(action)
		b.WriteString("\"}")
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(value, 10))
	b.WriteByte('\n')
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	writeHeader(b, name, help, "counter")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")

	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	count := cumulative[len(cumulative)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Snapshots carry no sum.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
