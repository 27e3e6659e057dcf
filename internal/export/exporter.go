// Package export renders query results into durable artifacts (CSV, JSON)
// stored in a blob backend.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/awsmug/torro-forms-sub006/internal/blob"
	"github.com/awsmug/torro-forms-sub006/internal/engine"
)

// Format identifies an export output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Artifact captures a stored export artifact.
type Artifact struct {
	ID          string    `json:"id"`
	FormID      string    `json:"form_id"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	Key         string    `json:"key"`
	SizeBytes   int64     `json:"size_bytes"`
	Rows        int       `json:"rows"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Exporter renders result pages into artifacts and stores them.
type Exporter struct {
	engine   *engine.Engine
	blobs    blob.Store
	pageSize int
}

// New constructs an exporter over the given engine and blob store.
func New(eng *engine.Engine, blobs blob.Store) *Exporter {
	return &Exporter{engine: eng, blobs: blobs, pageSize: 500}
}

// Export runs the query page by page, renders all rows in the requested
// format, and stores the payload as a new immutable blob.
func (x *Exporter) Export(ctx context.Context, formID string, format Format, opts engine.QueryOptions) (Artifact, error) {
	rows, err := x.collect(ctx, formID, opts)
	if err != nil {
		return Artifact{}, err
	}
	headers, formatted, err := x.engine.Format(ctx, formID, rows, engine.ModeExport)
	if err != nil {
		return Artifact{}, err
	}
	schema, err := x.engine.GetSchema(ctx, formID)
	if err != nil {
		return Artifact{}, err
	}

	var payload []byte
	var contentType string
	switch format {
	case FormatCSV:
		payload, err = renderCSV(headers, formatted)
		contentType = "text/csv"
	case FormatJSON:
		payload, err = renderJSON(schema, headers, formatted)
		contentType = "application/json"
	default:
		return Artifact{}, fmt.Errorf("unsupported export format %s", format)
	}
	if err != nil {
		return Artifact{}, err
	}

	id := uuid.NewString()
	key := fmt.Sprintf("%s/%s.%s", formID, id, format)
	info, err := x.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"form_id": formID, "rows": fmt.Sprintf("%d", len(formatted))},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store artifact: %w", err)
	}

	artifact := Artifact{
		ID:          id,
		FormID:      formID,
		Format:      format,
		ContentType: contentType,
		Key:         key,
		SizeBytes:   info.Size,
		Rows:        len(formatted),
		URL:         info.URL,
		CreatedAt:   info.LastModified,
	}
	if url, err := x.blobs.PresignURL(ctx, key, blob.SignedURLOptions{}); err == nil {
		artifact.URL = url
	} else if !errors.Is(err, blob.ErrUnsupported) {
		return Artifact{}, err
	}
	return artifact, nil
}

// collect tiles the query with fixed-size pages until total is exhausted.
func (x *Exporter) collect(ctx context.Context, formID string, opts engine.QueryOptions) ([]engine.Row, error) {
	var all []engine.Row
	opts.Limit = x.pageSize
	opts.Offset = 0
	for {
		page, total, err := x.engine.Query(ctx, formID, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		opts.Offset += len(page)
		if opts.Offset >= total || len(page) == 0 {
			return all, nil
		}
	}
}

// List returns stored artifacts for a form in key order.
func (x *Exporter) List(ctx context.Context, formID string) ([]blob.Info, error) {
	return x.blobs.List(ctx, formID+"/")
}

func renderCSV(headers []string, rows []engine.FormattedRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderJSON keys each record by column slug. Slugs are collision-free by
// construction, so no cell is lost when two columns carry the same title.
func renderJSON(schema []engine.Column, headers []string, rows []engine.FormattedRow) ([]byte, error) {
	columns := make([]jsonColumn, len(schema))
	for i, col := range schema {
		columns[i] = jsonColumn{Slug: col.Slug, Title: col.Title}
	}
	records := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]string, len(schema))
		for i, col := range schema {
			if i < len(row) {
				record[col.Slug] = row[i]
			}
		}
		records = append(records, record)
	}
	return json.Marshal(struct {
		Headers []string            `json:"headers"`
		Columns []jsonColumn        `json:"columns"`
		Records []map[string]string `json:"records"`
	}{Headers: headers, Columns: columns, Records: records})
}

// jsonColumn maps a record key back to its human header.
type jsonColumn struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}
