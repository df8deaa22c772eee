// Package observability provides the structured logging and metrics that
// tie every other component together: every Store write, orchestrator
// state transition, tool invocation, and dropped background-task error
// is logged and counted through here.
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track
// Store operation outcomes, write-transaction latency, tool invocation
// outcomes, turn duration, and in-flight turns/background tasks.
//
//	metrics := observability.NewMetrics()
//	metrics.RecordStoreOp("add", "ok")
//	metrics.RecordToolInvocation("add", "success")
//
// # Logging
//
// Logging is built on Go's slog package with request/turn/user/thread
// correlation pulled from context, sensitive-data redaction, and JSON
// or text output.
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.AddTurnCorrelationID(ctx, turnID)
//	ctx = observability.AddThreadID(ctx, threadID)
//	logger.Info(ctx, "tool invoked", "tool_name", "add")
package observability
