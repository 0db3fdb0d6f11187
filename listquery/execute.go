package listquery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tobilg/caddyserver-shop-module/schema"
	"go.uber.org/zap"
)

// execute runs the COUNT and the SELECT in one read transaction, so the
// total and the page agree.
func (e *Engine) execute(ctx context.Context, st *statement) (int64, []map[string]interface{}, error) {
	e.logger.Debug("Executing list query",
		zap.String("entity", st.entity),
		zap.String("count_sql", st.countSQL),
		zap.String("select_sql", st.selectSQL),
		zap.Int("args", len(st.args)),
	)

	var total int64
	var rows []map[string]interface{}
	err := e.store.ReadTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, st.countSQL, st.args...).Scan(&total); err != nil {
			return fmt.Errorf("count query failed: %w", err)
		}

		result, err := tx.QueryContext(ctx, st.selectSQL, st.args...)
		if err != nil {
			return fmt.Errorf("select query failed: %w", err)
		}
		defer result.Close()

		rows, err = scanRows(result, st.selected)
		return err
	})
	if err != nil {
		e.logger.Error("List query failed",
			zap.String("entity", st.entity),
			zap.Error(err),
		)
		return 0, nil, storageUnavailable(err)
	}
	return total, rows, nil
}

func scanRows(rows *sql.Rows, selected []selectedColumn) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if len(columns) != len(selected) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(selected), len(columns))
	}

	var out []map[string]interface{}
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range selected {
			row[col.name] = normalize(values[i], col.kind)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// normalize converts driver values into their JSON-ready form.
func normalize(v interface{}, kind schema.Kind) interface{} {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}

	switch kind {
	case schema.KindDecimal:
		switch x := v.(type) {
		case string:
			if s := strings.TrimSpace(x); json.Valid([]byte(s)) {
				return json.Number(s)
			}
		case float64:
			return json.Number(strconv.FormatFloat(x, 'f', -1, 64))
		case int64:
			return json.Number(strconv.FormatInt(x, 10))
		}
	case schema.KindJSON:
		if s, ok := v.(string); ok && json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
	case schema.KindBool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	}
	return v
}
