// Package contextcache holds the per-(thread, user) model-visible view
// of a conversation: a regeneratable projection of HistoryLog messages
// plus in-place mutations used while a turn is mid-flight.
package contextcache
