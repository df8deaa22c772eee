package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fielddesk/chatcore/pkg/models"
)

// CollectionAppend appends value to the ordered child collection at
// field on the record identified by recordID, returning the assigned
// order_index. The record must already exist.
func (s *Store) CollectionAppend(ctx context.Context, userID, name, field, recordID string, value interface{}) (int, error) {
	schema, err := s.schemaFor(ctx, name)
	if err != nil {
		return 0, err
	}
	kind, ok := schema[field]
	if !ok || kind != models.FieldJSONCollection {
		return 0, models.NewError(models.ErrValidation, fmt.Sprintf("%s is not a collection field on %s", field, name), nil)
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return 0, models.NewError(models.ErrValidation, "collection value is not JSON-marshalable", err)
	}

	child := childTableName(name, field)
	var orderIndex int

	err = s.withWriteTx(ctx, "collection_append", func(tx *sql.Tx) error {
		var ownerID string
		qerr := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE id = ? AND user_id = ?", name), recordID, userID).Scan(&ownerID)
		if qerr == sql.ErrNoRows {
			return models.NewError(models.ErrNotFound, "record not found", nil)
		}
		if qerr != nil {
			return fmt.Errorf("check owning record: %w", qerr)
		}

		var nextIndex sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT MAX(order_index) FROM %s WHERE record_id = ?", child), recordID).Scan(&nextIndex); err != nil {
			return fmt.Errorf("compute next order_index: %w", err)
		}
		orderIndex = 1
		if nextIndex.Valid {
			orderIndex = int(nextIndex.Int64) + 1
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (record_id, order_index, value_json) VALUES (?, ?, ?)", child),
			recordID, orderIndex, string(valueJSON)); err != nil {
			return fmt.Errorf("insert into %s: %w", child, err)
		}

		fts := ftsTableName(name)
		childID := fmt.Sprintf("%s_%d", field, orderIndex)
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (user_id, parent_id, child_id, %s) VALUES (?, ?, ?, ?)", fts, field),
			userID, recordID, childID, contentStringFromJSON(value)); err != nil {
			return fmt.Errorf("insert collection fts row into %s: %w", fts, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return orderIndex, nil
}

// CollectionGet returns items in field's ordered collection for
// recordID. limit <= 0 means unbounded.
func (s *Store) CollectionGet(ctx context.Context, userID, name, field, recordID string, offset, limit int) ([]models.CollectionItem, error) {
	schema, err := s.schemaFor(ctx, name)
	if err != nil {
		return nil, err
	}
	kind, ok := schema[field]
	if !ok || kind != models.FieldJSONCollection {
		return nil, models.NewError(models.ErrValidation, fmt.Sprintf("%s is not a collection field on %s", field, name), nil)
	}

	var owner string
	if err := s.reader.QueryRowContext(ctx, fmt.Sprintf("SELECT user_id FROM %s WHERE id = ?", name), recordID).Scan(&owner); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.NewError(models.ErrNotFound, "record not found", nil)
		}
		return nil, fmt.Errorf("check owning record: %w", err)
	}
	if owner != userID {
		return nil, models.NewError(models.ErrNotFound, "record not found", nil)
	}

	return s.collectionItems(ctx, name, field, recordID, offset, limit)
}

func (s *Store) collectionItems(ctx context.Context, name, field, recordID string, offset, limit int) ([]models.CollectionItem, error) {
	child := childTableName(name, field)
	q := fmt.Sprintf("SELECT order_index, value_json FROM %s WHERE record_id = ? ORDER BY order_index ASC", child)
	args := []interface{}{recordID}
	if limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.reader.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", child, err)
	}
	defer rows.Close()

	var items []models.CollectionItem
	for rows.Next() {
		var orderIndex int
		var valueJSON string
		if err := rows.Scan(&orderIndex, &valueJSON); err != nil {
			return nil, fmt.Errorf("scan %s: %w", child, err)
		}
		var value interface{}
		if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
			return nil, fmt.Errorf("decode collection value: %w", err)
		}
		items = append(items, models.CollectionItem{
			RecordID:   recordID,
			Field:      field,
			OrderIndex: orderIndex,
			Value:      value,
		})
	}
	return items, rows.Err()
}

func contentStringFromJSON(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	b, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(b)
}
