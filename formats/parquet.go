package formats

import (
	"fmt"
	"net/http"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/compress"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/tobilg/caddyserver-shop-module/listquery"
)

// WriteParquet writes a list result as a Parquet file.
// The items are converted to an Arrow table and then written to Parquet format.
func WriteParquet(w http.ResponseWriter, res *listquery.Result, filename string) error {
	pool := memory.NewGoAllocator()
	arrowSchema := resultSchema(res.Columns())

	record, err := buildRecord(pool, arrowSchema, res)
	if err != nil {
		return fmt.Errorf("failed to build record batch: %w", err)
	}
	table := array.NewTableFromRecords(arrowSchema, []arrow.Record{record})
	record.Release()
	defer table.Release()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithDictionaryDefault(true),
		parquet.WithAllocator(pool),
	)
	arrowWriterProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	w.Header().Set("Content-Type", "application/parquet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".parquet"))
	setPageHeaders(w, res)
	w.WriteHeader(http.StatusOK)

	// The chunk size covers the whole table so a page is one row group.
	chunkSize := table.NumRows()
	if chunkSize == 0 {
		chunkSize = 1
	}
	if err := pqarrow.WriteTable(table, w, chunkSize, writerProps, arrowWriterProps); err != nil {
		return fmt.Errorf("failed to write parquet: %w", err)
	}

	return nil
}
