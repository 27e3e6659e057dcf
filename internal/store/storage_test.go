package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, DriverMemory, Options{})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, err := st.CreateForm(ctx, formdomain.Form{ID: "f1", Title: "Survey"}); err != nil {
		t.Fatalf("memory store unusable: %v", err)
	}

	st, err = Open(ctx, "", Options{})
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	if st == nil {
		t.Fatalf("empty driver must fall back to memory")
	}

	st, err = Open(ctx, DriverSQLite, Options{SQLitePath: filepath.Join(t.TempDir(), "forms.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := st.CreateForm(ctx, formdomain.Form{ID: "f1", Title: "Survey"}); err != nil {
		t.Fatalf("sqlite store unusable: %v", err)
	}

	if _, err := Open(ctx, "oracle", Options{}); err == nil {
		t.Fatalf("unknown driver must fail")
	}
}
