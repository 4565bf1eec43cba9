// Package telemetry emits operator diagnostics for the telemetry pipeline
// itself. Each recording function sends an OTel log event and increments a
// metric counter; with no provider configured both are no-ops, so callers
// never need to guard these calls.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName  = "github.com/agentlens/cli"
	loggerName = "agentlens"
)

// instruments holds the lazily-initialized OTel metric instruments
type instruments struct {
	sessionTotal     metric.Int64Counter
	sessionStopTotal metric.Int64Counter
	correlationTotal metric.Int64Counter
	parsePassTotal   metric.Int64Counter
	parseErrorTotal  metric.Int64Counter
	deltaTotal       metric.Int64Counter
	tokenTotal       metric.Int64Counter

	parsePassDurHist metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     instruments
)

// initInstruments registers the metric instruments against the current
// global MeterProvider. Called lazily on first use.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterName)

		inst.sessionTotal, _ = m.Int64Counter("agentlens.session.starts.total",
			metric.WithDescription("Total wrapped agent session starts"),
		)
		inst.sessionStopTotal, _ = m.Int64Counter("agentlens.session.stops.total",
			metric.WithDescription("Total wrapped agent session terminations"),
		)
		inst.correlationTotal, _ = m.Int64Counter("agentlens.correlation.attempts.total",
			metric.WithDescription("Total session log correlation outcomes"),
		)
		inst.parsePassTotal, _ = m.Int64Counter("agentlens.parse.passes.total",
			metric.WithDescription("Total incremental parse passes"),
		)
		inst.parseErrorTotal, _ = m.Int64Counter("agentlens.parse.errors.total",
			metric.WithDescription("Total malformed native log lines skipped"),
		)
		inst.deltaTotal, _ = m.Int64Counter("agentlens.deltas.emitted.total",
			metric.WithDescription("Total metric deltas appended to the delta log"),
		)
		inst.tokenTotal, _ = m.Int64Counter("agentlens.tokens.total",
			metric.WithDescription("Total tokens observed across emitted deltas"),
		)

		inst.parsePassDurHist, _ = m.Float64Histogram("agentlens.parse.pass.duration_ms",
			metric.WithDescription("Incremental parse pass duration in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

// statusStr returns "ok" or "error" depending on whether err is nil
func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// severity returns SeverityInfo on success, SeverityError on failure
func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

// errKV returns a log KeyValue with the error message, or empty string if nil
func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", err.Error())
	}
	return otellog.String("error", "")
}

// emit sends an OTel log event with the given body and attributes
func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// RecordSessionStart records the launch of a wrapped agent subprocess
func RecordSessionStart(ctx context.Context, sessionID, agent string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.sessionTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("agent", agent),
		),
	)
	emit(ctx, "session.start", severity(err),
		otellog.String("session_id", sessionID),
		otellog.String("agent", agent),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordSessionStop records a wrapped subprocess exit
func RecordSessionStop(ctx context.Context, sessionID string, exitCode int, err error) {
	initInstruments()
	inst.sessionStopTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", statusStr(err))),
	)
	emit(ctx, "session.stop", severity(err),
		otellog.String("session_id", sessionID),
		otellog.Int64("exit_code", int64(exitCode)),
		errKV(err),
	)
}

// RecordCorrelation records the outcome of matching a native log to a session
func RecordCorrelation(ctx context.Context, sessionID, agent, outcome, matchedPath string, retries int) {
	initInstruments()
	inst.correlationTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("agent", agent),
			attribute.String("outcome", outcome),
		),
	)
	sev := otellog.SeverityInfo
	if outcome == "failed" {
		sev = otellog.SeverityWarn
	}
	emit(ctx, "correlation.result", sev,
		otellog.String("session_id", sessionID),
		otellog.String("agent", agent),
		otellog.String("outcome", outcome),
		otellog.String("matched_path", matchedPath),
		otellog.Int64("retries", int64(retries)),
	)
}

// RecordParsePass records one incremental parse pass over a native log
func RecordParsePass(ctx context.Context, sessionID string, deltas, conversations, malformed int, durationMs float64, err error) {
	initInstruments()
	inst.parsePassTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", statusStr(err))),
	)
	inst.parsePassDurHist.Record(ctx, durationMs)
	if malformed > 0 {
		inst.parseErrorTotal.Add(ctx, int64(malformed))
	}
	if deltas > 0 {
		inst.deltaTotal.Add(ctx, int64(deltas))
	}
	emit(ctx, "parse.pass", severity(err),
		otellog.String("session_id", sessionID),
		otellog.Int64("deltas", int64(deltas)),
		otellog.Int64("conversations", int64(conversations)),
		otellog.Int64("malformed_lines", int64(malformed)),
		otellog.Float64("duration_ms", durationMs),
		errKV(err),
	)
}

// RecordTokenUsage emits the token totals of one delta. Counter attributes
// stay low-cardinality; per-session detail lives in the log event.
func RecordTokenUsage(ctx context.Context, sessionID, agentSessionID string, input, output, cacheRead, cacheCreation int) {
	initInstruments()
	inst.tokenTotal.Add(ctx, int64(input+output),
		metric.WithAttributes(attribute.String("kind", "in_out")),
	)
	emit(ctx, "token.usage", otellog.SeverityInfo,
		otellog.String("session_id", sessionID),
		otellog.String("native_session_id", agentSessionID),
		otellog.Int64("input_tokens", int64(input)),
		otellog.Int64("output_tokens", int64(output)),
		otellog.Int64("cache_read_tokens", int64(cacheRead)),
		otellog.Int64("cache_creation_tokens", int64(cacheCreation)),
	)
}

// RecordDegraded records a swallowed pipeline error: telemetry keeps the
// subprocess alive and downgrades its own failures to diagnostics.
func RecordDegraded(ctx context.Context, sessionID, stage string, err error) {
	initInstruments()
	emit(ctx, "pipeline.degraded", otellog.SeverityWarn,
		otellog.String("session_id", sessionID),
		otellog.String("stage", stage),
		errKV(err),
	)
}
