// Package orchestrator implements the TurnOrchestrator state machine:
// one user message in, an ordered sequence of events out. It resolves
// a thread, persists the user turn, runs function-role middleware
// around a model stream, executes any tool calls the model requests
// through the ToolRegistry's R2R adapter, and loops bounded rounds of
// that until the model stops calling tools.
package orchestrator
