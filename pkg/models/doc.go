// Package models provides domain types for the chatcore service: store
// records and schemas, threads and messages, context entries, the event
// envelope streamed to transports, and the error-kind taxonomy.
package models
