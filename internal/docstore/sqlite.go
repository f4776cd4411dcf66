package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// SQLite stores documents as JSON rows in a single table, one row per
// (collection, id). Filters and ordering go through json_extract so role
// scoping happens at the query layer, not by post-filtering in memory.
type SQLite struct {
	DB *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{DB: db}
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func setDoc(ctx context.Context, exec execFunc, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = exec(ctx, `INSERT INTO documents(collection,id,data) VALUES (?,?,?)
ON CONFLICT(collection,id) DO UPDATE SET data=excluded.data`, collection, id, string(data))
	return err
}

// updateDoc merges fields into an existing document. A null field value
// removes that field.
func updateDoc(ctx context.Context, exec execFunc, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}
	res, err := exec(ctx, `UPDATE documents SET data=json_patch(data, ?) WHERE collection=? AND id=?`,
		string(patch), collection, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteDoc(ctx context.Context, exec execFunc, collection, id string) error {
	res, err := exec(ctx, `DELETE FROM documents WHERE collection=? AND id=?`, collection, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Set(ctx context.Context, collection, id string, doc any) error {
	return setDoc(ctx, s.DB.ExecContext, collection, id, doc)
}

func (s *SQLite) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return updateDoc(ctx, s.DB.ExecContext, collection, id, fields)
}

func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	return deleteDoc(ctx, s.DB.ExecContext, collection, id)
}

func (s *SQLite) GetByID(ctx context.Context, collection, id string, out any) error {
	var data string
	err := s.DB.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(data), out)
}

func fieldExpr(field string) string {
	return fmt.Sprintf("json_extract(data, '$.%s')", field)
}

func (s *SQLite) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	clauses := []string{"collection=?"}
	args := []any{collection}
	for _, f := range q.Filters {
		clauses = append(clauses, fieldExpr(f.Field)+"=?")
		args = append(args, f.Value)
	}

	orderExpr := ""
	if q.OrderBy != "" {
		orderExpr = fieldExpr(q.OrderBy)
	}
	if q.StartAfterID != "" {
		if orderExpr == "" {
			return nil, fmt.Errorf("cursor requires an order key")
		}
		var orderVal sql.NullString
		err := s.DB.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT %s FROM documents WHERE collection=? AND id=?`, orderExpr),
			collection, q.StartAfterID).Scan(&orderVal)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		cmp := ">"
		if q.Descending {
			cmp = "<"
		}
		clauses = append(clauses, fmt.Sprintf("(%s %s ? OR (%s = ? AND id %s ?))", orderExpr, cmp, orderExpr, cmp))
		args = append(args, orderVal.String, orderVal.String, q.StartAfterID)
	}

	query := `SELECT id, data FROM documents WHERE ` + strings.Join(clauses, " AND ")
	if orderExpr != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s, id %s", orderExpr, dir, dir)
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Document
	for rows.Next() {
		var d Document
		var data string
		if err := rows.Scan(&d.ID, &data); err != nil {
			return nil, err
		}
		d.Data = []byte(data)
		res = append(res, d)
	}
	return res, rows.Err()
}

type txWriter struct {
	tx *sql.Tx
}

func (w txWriter) Set(ctx context.Context, collection, id string, doc any) error {
	return setDoc(ctx, w.tx.ExecContext, collection, id, doc)
}

func (w txWriter) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return updateDoc(ctx, w.tx.ExecContext, collection, id, fields)
}

func (w txWriter) Delete(ctx context.Context, collection, id string) error {
	return deleteDoc(ctx, w.tx.ExecContext, collection, id)
}

func (s *SQLite) RunBatch(ctx context.Context, fn func(Writer) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(txWriter{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
