package formats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tobilg/caddyserver-shop-module/listquery"
)

// WriteCSV writes the items of a list result as CSV, one column per view
// field. Pagination metadata goes into X-Total-Count and X-Page headers.
func WriteCSV(w http.ResponseWriter, res *listquery.Result, filename string) error {
	columns := res.Columns()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".csv"))
	setPageHeaders(w, res)
	w.WriteHeader(http.StatusOK)

	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name
	}
	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(columns))
	for _, item := range res.Items {
		for i, c := range columns {
			record[i] = formatCSVValue(item[c.Name])
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func setPageHeaders(w http.ResponseWriter, res *listquery.Result) {
	w.Header().Set("X-Total-Count", strconv.FormatInt(res.Total, 10))
	w.Header().Set("X-Page", strconv.Itoa(res.Page))
	w.Header().Set("X-Per-Page", strconv.Itoa(res.PerPage))
}

// formatCSVValue converts an item value to its CSV cell.
func formatCSVValue(val interface{}) string {
	if val == nil {
		return ""
	}

	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case json.RawMessage:
		return string(v)
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
