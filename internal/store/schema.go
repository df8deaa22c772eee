package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/fielddesk/chatcore/pkg/models"
)

// schemaMetaTable records each store's declared fields so repeated
// CreateStoreIfNotExists calls (including across process restarts) can
// detect destructive drift.
const schemaMetaTable = "__store_schemas"

func (s *Store) ensureMetaTable(ctx context.Context) error {
	_, err := s.writer.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+schemaMetaTable+` (
	store_name TEXT NOT NULL,
	field_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	PRIMARY KEY (store_name, field_name)
)`)
	return err
}

func columnDDL(field string, kind models.FieldKind) (string, error) {
	switch kind {
	case models.FieldText, models.FieldJSON:
		return field + " TEXT", nil
	case models.FieldInteger, models.FieldBool:
		return field + " INTEGER", nil
	case models.FieldReal:
		return field + " REAL", nil
	case models.FieldJSONCollection:
		return "", nil // child table, not a parent column
	default:
		return "", fmt.Errorf("unknown field kind %q", kind)
	}
}

// CreateStoreIfNotExists declares name's schema. It is idempotent:
// missing fields are added, but a field already recorded with a
// different kind fails with ErrSchemaConflict.
func (s *Store) CreateStoreIfNotExists(ctx context.Context, name string, schema models.Schema) error {
	if !validIdentifier(name) {
		return models.NewError(models.ErrValidation, "invalid store name "+name, nil)
	}
	for field := range schema {
		if !validIdentifier(field) {
			return models.NewError(models.ErrValidation, "invalid field name "+field, nil)
		}
	}

	if err := s.ensureMetaTable(ctx); err != nil {
		return fmt.Errorf("ensure meta table: %w", err)
	}

	existing, err := s.loadRecordedSchema(ctx, name)
	if err != nil {
		return fmt.Errorf("load recorded schema: %w", err)
	}

	for field, kind := range schema {
		if recordedKind, ok := existing[field]; ok {
			if recordedKind != kind {
				return models.NewError(models.ErrSchemaConflict,
					fmt.Sprintf("store %q field %q declared as %q but already recorded as %q", name, field, kind, recordedKind), nil)
			}
		}
	}

	if _, err := s.writer.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	created_at TEXT NOT NULL
)`, name)); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	if _, err := s.writer.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_user_id ON %s(user_id)`, name, name)); err != nil {
		return fmt.Errorf("create user_id index: %w", err)
	}

	newFields := make(models.Schema)
	for field, kind := range schema {
		if _, ok := existing[field]; ok {
			continue
		}
		newFields[field] = kind

		switch kind {
		case models.FieldJSONCollection:
			child := childTableName(name, field)
			if _, err := s.writer.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	record_id TEXT NOT NULL,
	order_index INTEGER NOT NULL,
	value_json TEXT NOT NULL,
	PRIMARY KEY (record_id, order_index),
	FOREIGN KEY (record_id) REFERENCES %s(id) ON DELETE CASCADE
)`, child, name)); err != nil {
				return fmt.Errorf("create collection table %s: %w", child, err)
			}
		default:
			ddl, err := columnDDL(field, kind)
			if err != nil {
				return models.NewError(models.ErrValidation, err.Error(), err)
			}
			if _, err := s.writer.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, name, ddl)); err != nil {
				// SQLite has no "ADD COLUMN IF NOT EXISTS"; tolerate
				// the duplicate-column case for idempotent re-creation.
				if !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
					return fmt.Errorf("alter table %s add column %s: %w", name, field, err)
				}
			}
		}

		if _, err := s.writer.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s(store_name, field_name, kind) VALUES (?, ?, ?)", schemaMetaTable),
			name, field, string(kind)); err != nil {
			return fmt.Errorf("record schema field %s.%s: %w", name, field, err)
		}
	}

	if err := s.ensureFTSTable(ctx, name, schema); err != nil {
		return fmt.Errorf("ensure fts table: %w", err)
	}

	s.mu.Lock()
	merged := make(models.Schema)
	for field, kind := range existing {
		merged[field] = kind
	}
	for field, kind := range schema {
		merged[field] = kind
	}
	s.schemas[name] = merged
	s.mu.Unlock()

	return nil
}

func (s *Store) loadRecordedSchema(ctx context.Context, name string) (models.Schema, error) {
	rows, err := s.writer.QueryContext(ctx,
		fmt.Sprintf("SELECT field_name, kind FROM %s WHERE store_name = ?", schemaMetaTable), name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(models.Schema)
	for rows.Next() {
		var field, kind string
		if err := rows.Scan(&field, &kind); err != nil {
			return nil, err
		}
		out[field] = models.FieldKind(kind)
	}
	return out, rows.Err()
}

func (s *Store) ensureFTSTable(ctx context.Context, name string, schema models.Schema) error {
	indexable := make([]string, 0, len(schema))
	for field, kind := range schema {
		if kind.Indexable() {
			indexable = append(indexable, field)
		}
	}

	fts := ftsTableName(name)
	cols := []string{"user_id UNINDEXED", "parent_id UNINDEXED", "child_id UNINDEXED"}
	cols = append(cols, indexable...)

	_, err := s.writer.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s, tokenize='porter unicode61')`,
		fts, strings.Join(cols, ", ")))
	if err != nil {
		return err
	}

	for _, field := range indexable {
		if _, err := s.writer.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, fts, field)); err != nil {
			if !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				return fmt.Errorf("alter fts table %s add column %s: %w", fts, field, err)
			}
		}
	}
	return nil
}

// schemaFor returns the cached schema for name, loading it from the
// meta table on first use (e.g. after a process restart with stores
// already declared).
func (s *Store) schemaFor(ctx context.Context, name string) (models.Schema, error) {
	s.mu.RLock()
	schema, ok := s.schemas[name]
	s.mu.RUnlock()
	if ok {
		return schema, nil
	}

	loaded, err := s.loadRecordedSchema(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return nil, models.NewError(models.ErrNotFound, "store "+name+" has not been created", nil)
	}

	s.mu.Lock()
	s.schemas[name] = loaded
	s.mu.Unlock()
	return loaded, nil
}
