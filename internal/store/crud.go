package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fielddesk/chatcore/pkg/models"
)

// Add assigns an id if absent, stamps user_id and created_at, inserts
// a parent FTS row, and returns the assigned id.
func (s *Store) Add(ctx context.Context, userID, name string, data map[string]interface{}, recordID string) (string, error) {
	schema, err := s.schemaFor(ctx, name)
	if err != nil {
		return "", err
	}

	if err := validateFields(schema, data, false); err != nil {
		return "", err
	}

	id := recordID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := time.Now().UTC()

	err = s.withWriteTx(ctx, "add", func(tx *sql.Tx) error {
		cols := []string{"id", "user_id", "created_at"}
		vals := []interface{}{id, userID, createdAt.Format(time.RFC3339Nano)}
		for field, value := range data {
			cols = append(cols, field)
			vals = append(vals, encodeFieldValue(schema[field], value))
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", name, strings.Join(cols, ", "), placeholders)
		if _, err := tx.ExecContext(ctx, q, vals...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}

		return s.insertParentFTSRow(ctx, tx, name, schema, userID, id, data)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) insertParentFTSRow(ctx context.Context, tx *sql.Tx, name string, schema models.Schema, userID, id string, data map[string]interface{}) error {
	fts := ftsTableName(name)
	cols := []string{"user_id", "parent_id", "child_id"}
	vals := []interface{}{userID, id, ""}

	for field, kind := range schema {
		if !kind.Indexable() {
			continue
		}
		cols = append(cols, field)
		if v, ok := data[field]; ok {
			vals = append(vals, contentString(kind, v))
		} else {
			vals = append(vals, "")
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", fts, strings.Join(cols, ", "), placeholders)
	if _, err := tx.ExecContext(ctx, q, vals...); err != nil {
		return fmt.Errorf("insert fts row into %s: %w", fts, err)
	}
	return nil
}

func (s *Store) deleteParentFTSRow(ctx context.Context, tx *sql.Tx, name, userID, id string) error {
	fts := ftsTableName(name)
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE parent_id = ? AND child_id = '' AND user_id = ?`, fts), id, userID)
	return err
}

// Get selects one record by id for userID. Returns (nil, nil) if
// absent under this user.
func (s *Store) Get(ctx context.Context, userID, name, id string, loadCollections bool) (*models.Record, error) {
	schema, err := s.schemaFor(ctx, name)
	if err != nil {
		return nil, err
	}

	scalarFields := make([]string, 0, len(schema))
	for field, kind := range schema {
		if kind != models.FieldJSONCollection {
			scalarFields = append(scalarFields, field)
		}
	}

	selectCols := append([]string{"id", "user_id", "created_at"}, scalarFields...)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? AND user_id = ?", strings.Join(selectCols, ", "), name)

	row := s.reader.QueryRowContext(ctx, q, id, userID)
	dest := make([]interface{}, len(selectCols))
	destPtrs := make([]interface{}, len(selectCols))
	for i := range dest {
		destPtrs[i] = &dest[i]
	}
	if err := row.Scan(destPtrs...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}

	rec := &models.Record{
		ID:     fmt.Sprint(dest[0]),
		UserID: fmt.Sprint(dest[1]),
		Fields: make(map[string]interface{}),
	}
	if createdAt, ok := dest[2].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
	}
	for i, field := range scalarFields {
		rec.Fields[field] = decodeFieldValue(schema[field], dest[3+i])
	}

	if loadCollections {
		for field, kind := range schema {
			if kind != models.FieldJSONCollection {
				continue
			}
			items, err := s.collectionItems(ctx, name, field, id, 0, 0)
			if err != nil {
				return nil, err
			}
			rec.Fields[field] = items
		}
	}

	return rec, nil
}

// Update mutates non-collection fields atomically and re-syncs the
// parent FTS row.
func (s *Store) Update(ctx context.Context, userID, name, id string, updates map[string]interface{}, partial bool) error {
	schema, err := s.schemaFor(ctx, name)
	if err != nil {
		return err
	}
	if err := validateFields(schema, updates, true); err != nil {
		return err
	}

	return s.withWriteTx(ctx, "update", func(tx *sql.Tx) error {
		var existingID string
		err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE id = ? AND user_id = ?", name), id, userID).Scan(&existingID)
		if err == sql.ErrNoRows {
			return models.NewError(models.ErrNotFound, "record not found", nil)
		}
		if err != nil {
			return fmt.Errorf("check existing record: %w", err)
		}

		setClauses := make([]string, 0, len(updates))
		args := make([]interface{}, 0, len(updates)+2)
		for field, value := range updates {
			setClauses = append(setClauses, field+" = ?")
			args = append(args, encodeFieldValue(schema[field], value))
		}
		args = append(args, id, userID)

		q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND user_id = ?", name, strings.Join(setClauses, ", "))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("update %s: %w", name, err)
		}

		if err := s.deleteParentFTSRow(ctx, tx, name, userID, id); err != nil {
			return err
		}

		merged, err := s.mergedScalarFields(ctx, tx, name, schema, id, userID, updates)
		if err != nil {
			return err
		}
		return s.insertParentFTSRow(ctx, tx, name, schema, userID, id, merged)
	})
}

// mergedScalarFields fetches the post-update row so the re-inserted
// FTS row reflects every indexable field, not just the ones touched by
// this update.
func (s *Store) mergedScalarFields(ctx context.Context, tx *sql.Tx, name string, schema models.Schema, id, userID string, updates map[string]interface{}) (map[string]interface{}, error) {
	indexable := make([]string, 0, len(schema))
	for field, kind := range schema {
		if kind.Indexable() && kind != models.FieldJSONCollection {
			indexable = append(indexable, field)
		}
	}
	if len(indexable) == 0 {
		return map[string]interface{}{}, nil
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? AND user_id = ?", strings.Join(indexable, ", "), name)
	dest := make([]interface{}, len(indexable))
	destPtrs := make([]interface{}, len(indexable))
	for i := range dest {
		destPtrs[i] = &dest[i]
	}
	if err := tx.QueryRowContext(ctx, q, id, userID).Scan(destPtrs...); err != nil {
		return nil, fmt.Errorf("reload %s for fts resync: %w", name, err)
	}

	out := make(map[string]interface{}, len(indexable))
	for i, field := range indexable {
		out[field] = decodeFieldValue(schema[field], dest[i])
	}
	return out, nil
}

// Delete removes a record (cascading child collection rows) and its
// FTS rows.
func (s *Store) Delete(ctx context.Context, userID, name, id string) error {
	schema, err := s.schemaFor(ctx, name)
	if err != nil {
		return err
	}

	return s.withWriteTx(ctx, "delete", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ? AND user_id = ?", name), id, userID)
		if err != nil {
			return fmt.Errorf("delete from %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		for field, kind := range schema {
			if kind != models.FieldJSONCollection {
				continue
			}
			child := childTableName(name, field)
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE record_id = ?", child), id); err != nil {
				return fmt.Errorf("delete from %s: %w", child, err)
			}
		}

		fts := ftsTableName(name)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE parent_id = ? AND user_id = ?", fts), id, userID); err != nil {
			return fmt.Errorf("delete fts rows from %s: %w", fts, err)
		}
		return nil
	})
}

func validateFields(schema models.Schema, data map[string]interface{}, partial bool) error {
	for field, value := range data {
		kind, declared := schema[field]
		if !declared {
			return models.NewError(models.ErrValidation, "unknown field "+field, nil)
		}
		if kind == models.FieldJSONCollection {
			return models.NewError(models.ErrValidation, "collection field "+field+" cannot be set directly", nil)
		}
		if !kindMatches(kind, value) {
			return models.NewError(models.ErrValidation, fmt.Sprintf("field %s expects kind %s", field, kind), nil)
		}
	}
	return nil
}

func kindMatches(kind models.FieldKind, value interface{}) bool {
	if value == nil {
		return true
	}
	switch kind {
	case models.FieldText, models.FieldJSON:
		return true // json accepts any marshalable value
	case models.FieldInteger:
		switch value.(type) {
		case int, int32, int64:
			return true
		default:
			return false
		}
	case models.FieldReal:
		switch value.(type) {
		case float32, float64, int, int64:
			return true
		default:
			return false
		}
	case models.FieldBool:
		_, ok := value.(bool)
		return ok
	default:
		return false
	}
}

func encodeFieldValue(kind models.FieldKind, value interface{}) interface{} {
	switch kind {
	case models.FieldJSON:
		b, err := json.Marshal(value)
		if err != nil {
			return "null"
		}
		return string(b)
	case models.FieldBool:
		if b, ok := value.(bool); ok && b {
			return 1
		}
		return 0
	default:
		return value
	}
}

func decodeFieldValue(kind models.FieldKind, raw interface{}) interface{} {
	switch kind {
	case models.FieldJSON:
		s, ok := raw.(string)
		if !ok {
			return nil
		}
		var out interface{}
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil
		}
		return out
	case models.FieldBool:
		switch v := raw.(type) {
		case int64:
			return v != 0
		case int:
			return v != 0
		default:
			return false
		}
	default:
		return raw
	}
}

// contentString renders a field's value as the flat text content
// stored in its FTS column.
func contentString(kind models.FieldKind, value interface{}) string {
	switch kind {
	case models.FieldJSON:
		if s, ok := value.(string); ok {
			return s
		}
		b, _ := json.Marshal(value)
		return string(b)
	default:
		return fmt.Sprint(value)
	}
}
