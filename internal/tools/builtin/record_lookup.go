package builtin

import (
	"context"
	"encoding/json"

	"github.com/fielddesk/chatcore/internal/tools"
	"github.com/fielddesk/chatcore/pkg/models"
)

// RecordGetter is the subset of store.Store the lookup tool needs.
type RecordGetter interface {
	Get(ctx context.Context, userID, name, id string, loadCollections bool) (*models.Record, error)
}

// RecordLookupParams is the schema-derived shape for record_lookup.
// UserID is supplied by the registry, never by the model.
type RecordLookupParams struct {
	UserID          string `json:"-"`
	StoreName       string `json:"store_name" jsonschema:"required,description=Name of the store to look up."`
	RecordID        string `json:"record_id" jsonschema:"required,description=ID of the record to fetch."`
	LoadCollections bool   `json:"load_collections,omitempty" jsonschema:"description=Whether to include child collection fields in the result."`
}

// RegisterRecordLookup registers record_lookup, a schema-derived tool
// that fetches a single record the caller owns from a named store.
func RegisterRecordLookup(reg *tools.Registry, store RecordGetter) error {
	return tools.RegisterDerived(reg, "record_lookup",
		"Fetch a single record the caller owns from a named store by id.",
		func(ctx context.Context, userID, threadID, turnCorrelationID string, params RecordLookupParams) (tools.Result, error) {
			rec, err := store.Get(ctx, userID, params.StoreName, params.RecordID, params.LoadCollections)
			if err != nil {
				return tools.Result{}, err
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{Content: string(payload)}, nil
		})
}
