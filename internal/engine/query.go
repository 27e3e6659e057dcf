package engine

import "sort"

// SortDirection orders query results ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// QueryOptions parameterizes one page read over a built pivot.
//
// Filter is exact-match per column; entries naming columns absent from the
// schema are ignored rather than erroring, keeping queries robust against
// stale clients. The same policy applies to an unknown SortBy column.
type QueryOptions struct {
	Filter    map[string]string
	SortBy    string
	SortDir   SortDirection
	ResultIDs []string
	Offset    int
	Limit     int
}

// Query filters, sorts, and paginates the pivot's rows. The returned total
// counts all matching rows independent of pagination; a page beyond the end
// is empty with the correct total, never an error.
func (p *Pivot) Query(opts QueryOptions) ([]Row, int) {
	known := make(map[string]struct{}, len(p.Columns))
	for _, col := range p.Columns {
		known[col.Slug] = struct{}{}
	}

	var allowed map[string]struct{}
	if len(opts.ResultIDs) > 0 {
		allowed = make(map[string]struct{}, len(opts.ResultIDs))
		for _, id := range opts.ResultIDs {
			allowed[id] = struct{}{}
		}
	}

	matched := make([]Row, 0, len(p.Rows))
	for _, row := range p.Rows {
		if allowed != nil {
			if _, ok := allowed[row[ColumnID]]; !ok {
				continue
			}
		}
		if !matchesFilter(row, known, opts.Filter) {
			continue
		}
		matched = append(matched, row)
	}
	total := len(matched)

	if opts.SortBy != "" {
		if _, ok := known[opts.SortBy]; ok {
			desc := opts.SortDir == SortDesc
			sort.SliceStable(matched, func(i, j int) bool {
				a, b := matched[i][opts.SortBy], matched[j][opts.SortBy]
				if desc {
					return a > b
				}
				return a < b
			})
		}
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if opts.Limit > 0 && offset+opts.Limit < total {
		end = offset + opts.Limit
	}
	page := make([]Row, end-offset)
	copy(page, matched[offset:end])
	return page, total
}

func matchesFilter(row Row, known map[string]struct{}, filter map[string]string) bool {
	for slug, want := range filter {
		if _, ok := known[slug]; !ok {
			continue // unknown filter column, ignored by design
		}
		if row[slug] != want {
			return false
		}
	}
	return true
}
