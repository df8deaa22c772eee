// Package history is the HistoryLog façade over the Store: threads
// and their messages, scoped by user_id, with thread-title and
// message-content full-text search unioned together.
package history
