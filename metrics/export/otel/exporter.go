package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authclient.MetricsSnapshot
	AuditDropped() uint64
}

type counterInstrument struct {
	id  authclient.MetricID
	ins metric.Int64ObservableCounter
}

type histogramInstrument struct {
	id      authclient.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// stateInstruments are only created when the source also implements
// internaldefs.StateSource.
type stateInstruments struct {
	source   internaldefs.StateSource
	session  metric.Int64ObservableGauge
	attempts metric.Int64ObservableGauge
	cooldown metric.Int64ObservableGauge
	actions  []metric.ObserveOption
}

// OTelExporter publishes client counters through asynchronous instruments
// observed in one registered callback.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []counterInstrument
	histograms   []histogramInstrument
	auditDropped metric.Int64ObservableCounter
	state        *stateInstruments

	observables []metric.Observable
}

func NewOTelExporter(meter metric.Meter, client *authclient.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	if err := e.registerCounters(meter); err != nil {
		return nil, err
	}
	if err := e.registerHistograms(meter); err != nil {
		return nil, err
	}
	if state, ok := source.(internaldefs.StateSource); ok {
		if err := e.registerState(meter, state); err != nil {
			return nil, err
		}
	}

	registration, err := meter.RegisterCallback(e.observe, e.observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	e.observables = nil
	return e, nil
}

func (e *OTelExporter) registerCounters(meter metric.Meter) error {
	e.counters = make([]counterInstrument, 0, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, ins: ins})
		e.observables = append(e.observables, ins)
	}

	dropped, err := meter.Int64ObservableCounter(
		"authclient_audit_dropped_total",
		metric.WithDescription("Audit events lost to dispatcher backpressure."),
	)
	if err != nil {
		return fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	e.observables = append(e.observables, dropped)
	return nil
}

// registerHistograms exposes each latency histogram as one cumulative
// gauge per bound plus a count, the shape the Prometheus exporter renders.
func (e *OTelExporter) registerHistograms(meter metric.Meter) error {
	e.histograms = make([]histogramInstrument, 0, len(internaldefs.HistogramDefs))
	for _, def := range internaldefs.HistogramDefs {
		h := histogramInstrument{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative refresh latency bucket."))
			if err != nil {
				return fmt.Errorf("create bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			e.observables = append(e.observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Refresh latency samples."))
		if err != nil {
			return fmt.Errorf("create count gauge %s_count: %w", def.Name, err)
		}
		h.count = count
		e.observables = append(e.observables, count)
		e.histograms = append(e.histograms, h)
	}
	return nil
}

func (e *OTelExporter) registerState(meter metric.Meter, source internaldefs.StateSource) error {
	s := &stateInstruments{source: source}
	var err error
	if s.session, err = meter.Int64ObservableGauge(internaldefs.SessionGaugeName,
		metric.WithDescription(internaldefs.SessionGaugeHelp)); err != nil {
		return fmt.Errorf("create session gauge: %w", err)
	}
	if s.attempts, err = meter.Int64ObservableGauge(internaldefs.AttemptsGaugeName,
		metric.WithDescription(internaldefs.AttemptsGaugeHelp)); err != nil {
		return fmt.Errorf("create attempts gauge: %w", err)
	}
	if s.cooldown, err = meter.Int64ObservableGauge(internaldefs.CooldownGaugeName,
		metric.WithDescription(internaldefs.CooldownGaugeHelp)); err != nil {
		return fmt.Errorf("create cooldown gauge: %w", err)
	}
	s.actions = make([]metric.ObserveOption, len(authclient.Actions))
	for i, action := range authclient.Actions {
		s.actions[i] = metric.WithAttributes(attribute.String(internaldefs.ActionLabel, string(action)))
	}

	e.state = s
	e.observables = append(e.observables, s.session, s.attempts, s.cooldown)
	return nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.ins, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i := range cumulative {
			o.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if s := e.state; s != nil {
		o.ObserveInt64(s.session, internaldefs.BoolGauge(s.source.IsAuthenticated()))
		for i, action := range authclient.Actions {
			st := s.source.RateLimitState(action)
			o.ObserveInt64(s.attempts, int64(st.Attempts), s.actions[i])
			o.ObserveInt64(s.cooldown, internaldefs.BoolGauge(st.Cooldown), s.actions[i])
		}
	}
	return nil
}

// Close unregisters the callback. The instruments stay with the meter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
