package listquery

// Result is one page of a list query.
type Result struct {
	Items      []map[string]interface{} `json:"items"`
	Page       int                      `json:"page"`
	PerPage    int                      `json:"per_page"`
	Total      int64                    `json:"total"`
	TotalPages int64                    `json:"total_pages"`

	columns []ResultColumn
}

// Columns describes the item keys in view order.
func (r *Result) Columns() []ResultColumn {
	return r.columns
}

// NewResult builds a result from already projected items.
func NewResult(items []map[string]interface{}, columns []ResultColumn, page, perPage int, total int64) *Result {
	if items == nil {
		items = []map[string]interface{}{}
	}
	var pages int64
	if perPage > 0 {
		pages = (total + int64(perPage) - 1) / int64(perPage)
	}
	return &Result{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: pages,
		columns:    columns,
	}
}

// assemble projects rows through the view and formats money.
func (st *statement) assemble(total int64, rows []map[string]interface{}) *Result {
	items := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		item := make(map[string]interface{}, len(st.projections))
		for _, p := range st.projections {
			v := row[p.column]
			if v == nil && !p.nullable {
				v = zeroValue(p.kind)
			}
			item[p.name] = v
		}
		items[i] = st.monetary.FormatDict(item)
	}
	return NewResult(items, st.columns(), st.page, st.limit, total)
}

func (st *statement) columns() []ResultColumn {
	columns := make([]ResultColumn, len(st.projections))
	for i, p := range st.projections {
		columns[i] = ResultColumn{Name: p.name, Kind: p.kind, Monetary: st.monetary.Has(p.name)}
	}
	return columns
}
