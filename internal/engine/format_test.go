package engine

import (
	"fmt"
	"testing"
	"time"
)

func formatFixture() ([]Column, []Row) {
	columns := []Column{
		{Slug: ColumnID, Title: "ID", Kind: KindSynthetic},
		{Slug: "element_user", Title: "User", Kind: KindScalar},
		{Slug: "element_date", Title: "Submitted", Kind: KindScalar},
		{Slug: "element_color_red", Title: "Color: Red", Kind: KindChoiceBool},
	}
	rows := []Row{
		{
			ColumnID:            "s1",
			"element_user":      "u42",
			"element_date":      "2026-03-14T09:30:00Z",
			"element_color_red": ChoiceYes,
		},
		{
			// Sparse row: the formatter must still emit every cell.
			ColumnID: "s2",
		},
	}
	return columns, rows
}

func TestFormatAlignsCellsToSchema(t *testing.T) {
	columns, rows := formatFixture()
	f := NewFormatter("en-US")

	headers := f.Headers(columns)
	want := []string{"ID", "User", "Submitted", "Color: Red"}
	if fmt.Sprint(headers) != fmt.Sprint(want) {
		t.Fatalf("headers = %v, want %v", headers, want)
	}

	formatted := f.Format(columns, rows, ModeDisplay)
	if len(formatted) != 2 {
		t.Fatalf("formatted %d rows, want 2", len(formatted))
	}
	for i, row := range formatted {
		if len(row) != len(columns) {
			t.Fatalf("row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}
	// The sparse row renders empty strings for absent scalars and a
	// localized "No" for the absent choice.
	sparse := formatted[1]
	if sparse[1] != "" || sparse[2] != "" {
		t.Fatalf("sparse scalar cells = %q / %q, want empty", sparse[1], sparse[2])
	}
	if sparse[3] != "No" {
		t.Fatalf("sparse choice cell = %q, want No", sparse[3])
	}
}

func TestFormatModes(t *testing.T) {
	columns, rows := formatFixture()
	f := NewFormatter("en-US")

	raw := f.Format(columns, rows, ModeRaw)
	if raw[0][3] != ChoiceYes {
		t.Fatalf("raw mode localized the choice cell: %q", raw[0][3])
	}
	display := f.Format(columns, rows, ModeDisplay)
	if display[0][3] != "Yes" {
		t.Fatalf("display mode choice cell = %q, want Yes", display[0][3])
	}
	export := f.Format(columns, rows, ModeExport)
	if export[0][3] != "Yes" {
		t.Fatalf("export mode choice cell = %q, want Yes", export[0][3])
	}
}

func TestFormatGermanLocale(t *testing.T) {
	columns, rows := formatFixture()
	f := NewFormatter("de")
	f.RegisterRule("element_date", ModeDisplay, DateDisplayRule(f.Localizer()))

	display := f.Format(columns, rows, ModeDisplay)
	if display[0][3] != "Ja" {
		t.Fatalf("german choice cell = %q, want Ja", display[0][3])
	}
	if display[1][3] != "Nein" {
		t.Fatalf("german absent choice cell = %q, want Nein", display[1][3])
	}
	if display[0][2] != "14.03.2026" {
		t.Fatalf("german date cell = %q, want 14.03.2026", display[0][2])
	}
}

func TestFormatUnsupportedLocaleFallsBack(t *testing.T) {
	l := NewLocalizer("tlh-KL")
	if got := l.YesNo(ChoiceYes); got != "Yes" {
		t.Fatalf("fallback YesNo = %q, want Yes", got)
	}
}

func TestUserDisplayRule(t *testing.T) {
	columns, rows := formatFixture()
	f := NewFormatter("en-US")
	f.RegisterRule("element_user", ModeDisplay, UserDisplayRule(func(id string) (string, bool) {
		if id == "u42" {
			return "Ada Lovelace", true
		}
		return "", false
	}))

	display := f.Format(columns, rows, ModeDisplay)
	if display[0][1] != "Ada Lovelace" {
		t.Fatalf("resolved user cell = %q", display[0][1])
	}
	// Export mode has no rule registered, so the raw id passes through.
	export := f.Format(columns, rows, ModeExport)
	if export[0][1] != "u42" {
		t.Fatalf("export user cell = %q, want raw id", export[0][1])
	}
}

func TestDateDisplayRule(t *testing.T) {
	f := NewFormatter("en-US")
	rule := DateDisplayRule(f.Localizer())
	col := Column{Slug: "element_date", Kind: KindScalar}

	if got := rule(col, "2026-03-14T09:30:00Z"); got != "Mar 14, 2026" {
		t.Fatalf("formatted date = %q, want Mar 14, 2026", got)
	}
	if got := rule(col, "not-a-date"); got != "not-a-date" {
		t.Fatalf("unparseable value must fall through, got %q", got)
	}
	if got := rule(col, ""); got != "" {
		t.Fatalf("empty value must stay empty, got %q", got)
	}
}

func TestLocalizerFormatDate(t *testing.T) {
	ts := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if got := NewLocalizer("en-US").FormatDate(ts); got != "Mar 14, 2026" {
		t.Fatalf("en date = %q", got)
	}
	if got := NewLocalizer("de-DE").FormatDate(ts); got != "14.03.2026" {
		t.Fatalf("de date = %q", got)
	}
}
