package models

import "time"

// FieldKind is the declared type of a Store schema field.
type FieldKind string

const (
	FieldText            FieldKind = "text"
	FieldInteger         FieldKind = "integer"
	FieldReal            FieldKind = "real"
	FieldBool            FieldKind = "bool"
	FieldJSON            FieldKind = "json"
	FieldJSONCollection  FieldKind = "json_collection"
)

// Indexable reports whether a field's content participates in FTS.
func (k FieldKind) Indexable() bool {
	return k == FieldText || k == FieldJSON || k == FieldJSONCollection
}

// Schema is a store's field-name-to-kind declaration. Schemas are
// process-global, not per-user.
type Schema map[string]FieldKind

// Equal reports whether two schemas declare the same fields with the
// same kinds, ignoring field order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for name, kind := range s {
		if other[name] != kind {
			return false
		}
	}
	return true
}

// Record is one row of a store: a generated id, the owning user, a
// creation timestamp, and the caller-defined fields.
type Record struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	CreatedAt time.Time              `json:"created_at"`
	Fields    map[string]interface{} `json:"fields"`
}

// CollectionItem is one append-only child row under a record's
// json_collection field. OrderIndex is assigned server-side and is
// monotonically increasing within (RecordID, Field).
type CollectionItem struct {
	RecordID   string      `json:"record_id"`
	Field      string      `json:"field"`
	OrderIndex int         `json:"order_index"`
	Value      interface{} `json:"value"`
}

// Filter is one AND-combined predicate in a Store.Find call. Op is one
// of "eq", "like", or "contains"; unknown ops fail with ErrValidation.
type Filter struct {
	Field string
	Op    string
	Value interface{}
}

// FindOptions bounds and orders a Store.Find call.
type FindOptions struct {
	Filters   []Filter
	Limit     int
	Offset    int
	OrderBy   string
	OrderDesc bool
}
