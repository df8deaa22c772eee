package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fielddesk/chatcore/pkg/models"
)

func parseTimeOrZero(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Find returns records on name matching opts.Filters for userID,
// ordered and paginated per opts. Collections are never eagerly loaded;
// callers fetch them via CollectionGet when needed.
func (s *Store) Find(ctx context.Context, userID, name string, opts models.FindOptions) ([]models.Record, error) {
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

	where, args, err := buildWhereClause(schema, name, userID, opts.Filters)
	if err != nil {
		return nil, err
	}

	selectCols := append([]string{"id", "user_id", "created_at"}, scalarFields...)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(selectCols, ", "), name, where)

	if opts.OrderBy != "" {
		if !validIdentifier(opts.OrderBy) {
			return nil, models.NewError(models.ErrValidation, "invalid order_by field", nil)
		}
		dir := "ASC"
		if opts.OrderDesc {
			dir = "DESC"
		}
		q += fmt.Sprintf(" ORDER BY %s %s", opts.OrderBy, dir)
	} else {
		q += " ORDER BY created_at ASC"
	}

	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			q += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.reader.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		dest := make([]interface{}, len(selectCols))
		destPtrs := make([]interface{}, len(selectCols))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}
		if err := rows.Scan(destPtrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}

		rec := models.Record{
			ID:     fmt.Sprint(dest[0]),
			UserID: fmt.Sprint(dest[1]),
			Fields: make(map[string]interface{}),
		}
		if createdAt, ok := dest[2].(string); ok {
			rec.CreatedAt = parseTimeOrZero(createdAt)
		}
		for i, field := range scalarFields {
			rec.Fields[field] = decodeFieldValue(schema[field], dest[3+i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of records on name matching opts.Filters
// for userID, ignoring Limit/Offset/OrderBy.
func (s *Store) Count(ctx context.Context, userID, name string, filters []models.Filter) (int, error) {
	schema, err := s.schemaFor(ctx, name)
	if err != nil {
		return 0, err
	}

	where, args, err := buildWhereClause(schema, name, userID, filters)
	if err != nil {
		return 0, err
	}

	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", name, where)
	if err := s.reader.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// buildWhereClause translates the eq/LIKE/contains filter grammar into
// a parameterized WHERE clause scoped to userID. "contains" targets
// json_collection fields by matching against their child table.
func buildWhereClause(schema models.Schema, name, userID string, filters []models.Filter) (string, []interface{}, error) {
	clauses := []string{"user_id = ?"}
	args := []interface{}{userID}

	for _, f := range filters {
		kind, declared := schema[f.Field]
		if !declared {
			return "", nil, models.NewError(models.ErrValidation, "unknown filter field "+f.Field, nil)
		}

		switch f.Op {
		case "eq":
			if kind == models.FieldJSONCollection {
				return "", nil, models.NewError(models.ErrValidation, "eq is not supported on collection fields", nil)
			}
			clauses = append(clauses, f.Field+" = ?")
			args = append(args, encodeFieldValue(kind, f.Value))
		case "like":
			if kind != models.FieldText && kind != models.FieldJSON {
				return "", nil, models.NewError(models.ErrValidation, "like requires a text or json field", nil)
			}
			clauses = append(clauses, f.Field+" LIKE ?")
			args = append(args, fmt.Sprint(f.Value))
		case "contains":
			if kind != models.FieldJSONCollection {
				return "", nil, models.NewError(models.ErrValidation, "contains requires a collection field", nil)
			}
			// Narrows to records whose collection child table has a row
			// with a matching value_json.
			child := childTableName(name, f.Field)
			clauses = append(clauses, fmt.Sprintf("id IN (SELECT record_id FROM %s WHERE value_json LIKE ?)", child))
			args = append(args, "%"+fmt.Sprint(f.Value)+"%")
		default:
			return "", nil, models.NewError(models.ErrValidation, "unsupported filter op "+f.Op, nil)
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}
