package engine

import "time"

// Mode selects the rendering target for formatted rows.
type Mode string

const (
	// ModeRaw passes stored values through untouched.
	ModeRaw Mode = "raw"
	// ModeDisplay renders values for on-screen result tables.
	ModeDisplay Mode = "display"
	// ModeExport renders values for file exports.
	ModeExport Mode = "export"
)

// FormatterFunc transforms one raw cell value for a target mode.
type FormatterFunc func(col Column, value string) string

// FormattedRow holds one rendered row with cells aligned to the schema's
// column order. Cells are never nil; absent values render as "".
type FormattedRow []string

// Formatter renders pivot rows field by field. Each column may register an
// optional formatter per mode; when none is registered for the requested
// mode the raw value falls through, except for the built-in choice_bool
// localization in display and export modes.
type Formatter struct {
	localizer *Localizer
	rules     map[string]map[Mode]FormatterFunc
}

// NewFormatter constructs a formatter localizing tokens for the given locale.
func NewFormatter(locale string) *Formatter {
	return &Formatter{
		localizer: NewLocalizer(locale),
		rules:     make(map[string]map[Mode]FormatterFunc),
	}
}

// RegisterRule attaches a formatting rule to a column slug for one mode.
func (f *Formatter) RegisterRule(slug string, mode Mode, fn FormatterFunc) {
	if fn == nil {
		return
	}
	if f.rules[slug] == nil {
		f.rules[slug] = make(map[Mode]FormatterFunc)
	}
	f.rules[slug][mode] = fn
}

// Localizer exposes the formatter's localizer for rule construction.
func (f *Formatter) Localizer() *Localizer { return f.localizer }

// Headers returns the human column labels in schema order, re-keying machine
// slugs to titles purely at presentation time.
func (f *Formatter) Headers(schema []Column) []string {
	headers := make([]string, len(schema))
	for i, col := range schema {
		headers[i] = col.Title
	}
	return headers
}

// Format renders rows for the target mode. Column count and order always
// match the schema; no cell is ever null.
func (f *Formatter) Format(schema []Column, rows []Row, mode Mode) []FormattedRow {
	out := make([]FormattedRow, len(rows))
	for i, row := range rows {
		rendered := make(FormattedRow, len(schema))
		for j, col := range schema {
			rendered[j] = f.formatCell(col, row[col.Slug], mode)
		}
		out[i] = rendered
	}
	return out
}

func (f *Formatter) formatCell(col Column, value string, mode Mode) string {
	if byMode, ok := f.rules[col.Slug]; ok {
		if fn, ok := byMode[mode]; ok {
			return fn(col, value)
		}
	}
	if col.Kind == KindChoiceBool {
		switch mode {
		case ModeDisplay, ModeExport:
			return f.localizer.YesNo(value)
		default:
			if value == "" {
				return ChoiceNo
			}
		}
	}
	return value
}

// UserDisplayRule builds a formatting rule resolving raw user ids to display
// names, falling back to the raw id when the resolver has no answer.
func UserDisplayRule(resolve func(userID string) (string, bool)) FormatterFunc {
	return func(_ Column, value string) string {
		if value == "" {
			return ""
		}
		if name, ok := resolve(value); ok {
			return name
		}
		return value
	}
}

// DateDisplayRule builds a formatting rule rendering RFC 3339 timestamps as
// localized date strings. Unparseable values fall through untouched.
func DateDisplayRule(localizer *Localizer) FormatterFunc {
	return func(_ Column, value string) string {
		if value == "" {
			return ""
		}
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return value
		}
		return localizer.FormatDate(t)
	}
}
