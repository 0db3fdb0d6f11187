package formats

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/decimal128"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/tobilg/caddyserver-shop-module/listquery"
	"github.com/tobilg/caddyserver-shop-module/money"
	"github.com/tobilg/caddyserver-shop-module/schema"
)

// Decimal columns that are not money keep up to 9 fractional digits.
const (
	decimalPrecision = 38
	decimalScale     = 9
)

// WriteArrowIPC writes a list result as an Apache Arrow IPC stream with a
// single record batch.
func WriteArrowIPC(w http.ResponseWriter, res *listquery.Result) error {
	pool := memory.NewGoAllocator()
	arrowSchema := resultSchema(res.Columns())

	record, err := buildRecord(pool, arrowSchema, res)
	if err != nil {
		return fmt.Errorf("failed to build record batch: %w", err)
	}
	defer record.Release()

	w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
	setPageHeaders(w, res)
	w.WriteHeader(http.StatusOK)

	writer := ipc.NewWriter(w, ipc.WithSchema(arrowSchema), ipc.WithAllocator(pool))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return writer.Close()
}

// resultSchema maps view columns to Arrow fields. Every field is nullable
// since nullable view fields keep NULL.
func resultSchema(columns []listquery.ResultColumn) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = arrow.Field{Name: c.Name, Type: kindToArrowType(c), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func kindToArrowType(c listquery.ResultColumn) arrow.DataType {
	if c.Monetary {
		return &arrow.Decimal128Type{Precision: decimalPrecision, Scale: int32(money.Scale)}
	}
	switch c.Kind {
	case schema.KindInt:
		return arrow.PrimitiveTypes.Int64
	case schema.KindFloat:
		return arrow.PrimitiveTypes.Float64
	case schema.KindDecimal:
		return &arrow.Decimal128Type{Precision: decimalPrecision, Scale: decimalScale}
	case schema.KindBool:
		return arrow.FixedWidthTypes.Boolean
	case schema.KindDatetime:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		// string, text, enum and json (as its text)
		return arrow.BinaryTypes.String
	}
}

// buildRecord builds one record batch holding every item of the result.
func buildRecord(pool memory.Allocator, arrowSchema *arrow.Schema, res *listquery.Result) (arrow.Record, error) {
	builder := array.NewRecordBuilder(pool, arrowSchema)
	defer builder.Release()

	columns := res.Columns()
	for _, item := range res.Items {
		for i, c := range columns {
			if err := appendValueToBuilder(builder.Field(i), item[c.Name]); err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
		}
	}
	return builder.NewRecord(), nil
}

// appendValueToBuilder appends a value to the appropriate Arrow builder
func appendValueToBuilder(builder array.Builder, val interface{}) error {
	if val == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := val.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", val)
		}
		b.Append(v)
	case *array.Int64Builder:
		v, ok := toInt64(val)
		if !ok {
			return fmt.Errorf("expected integer, got %T", val)
		}
		b.Append(v)
	case *array.Float64Builder:
		v, ok := toFloat64(val)
		if !ok {
			return fmt.Errorf("expected float, got %T", val)
		}
		b.Append(v)
	case *array.Decimal128Builder:
		dt := b.Type().(*arrow.Decimal128Type)
		n, err := decimal128.FromString(decimalText(val), dt.Precision, dt.Scale)
		if err != nil {
			// Values that do not fit the column type are dropped, not failed.
			b.AppendNull()
			return nil
		}
		b.Append(n)
	case *array.TimestampBuilder:
		t, ok := toTime(val)
		if !ok {
			b.AppendNull()
			return nil
		}
		b.Append(arrow.Timestamp(t.UnixMicro()))
	case *array.StringBuilder:
		b.Append(formatCSVValue(val))
	default:
		return fmt.Errorf("unsupported builder type: %T", builder)
	}

	return nil
}

func toInt64(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

func toFloat64(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	if n, ok := toInt64(val); ok {
		return float64(n), true
	}
	return 0, false
}

func decimalText(val interface{}) string {
	switch v := val.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return formatCSVValue(v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// toTime accepts driver times and the text timestamps sqlite stores.
func toTime(val interface{}) (time.Time, bool) {
	switch v := val.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
