package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/model"
)

// nameFields hold CSL name lists. In tabular input they are separated by ';'
// and written either "Family, Given" or as a literal.
var nameFields = map[string]bool{
	"author":           true,
	"editor":           true,
	"translator":       true,
	"container-author": true,
}

// dateFields hold CSL dates, kept raw from tabular input.
var dateFields = map[string]bool{
	"issued":   true,
	"accessed": true,
}

// LoadReferences reads references from path, picking the format from the
// file extension: .json, .csv, .tsv, .xlsx or .parquet.
func LoadReferences(ctx context.Context, path string) ([]model.Reference, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return DecodeReferences(ctx, f)
	case ".csv", ".tsv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		opts := CSVOptions{LazyQuotes: true}
		if ext == ".tsv" {
			opts.Delimiter = '\t'
		}
		rows, err := collect(StreamCSV(ctx, f, opts))
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", path)
		}
		return ReferencesFromRows(rows)
	case ".xlsx":
		rows, err := ReadXLSX(path, XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", path)
		}
		return ReferencesFromRows(rows)
	case ".parquet":
		records, err := ReadParquet(path)
		if err != nil {
			return nil, err
		}
		return ReferencesFromRows(recordsToRows(records))
	default:
		return nil, eris.Errorf("ingest: unsupported reference file type %q", ext)
	}
}

// DecodeReferences streams a JSON array of references. Each element is either
// {"id": …, "metadata": {…}} or a flat CSL-JSON item whose "id" is lifted out
// and whose remaining keys become the metadata.
func DecodeReferences(ctx context.Context, r io.Reader) ([]model.Reference, error) {
	itemCh, errCh := DecodeJSONArray[map[string]json.RawMessage](ctx, r)

	var refs []model.Reference
	for item := range itemCh {
		ref, err := referenceFromItem(item, len(refs)+1)
		if err != nil {
			for range itemCh {
			}
			return nil, err
		}
		refs = append(refs, ref)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return refs, nil
}

func referenceFromItem(item map[string]json.RawMessage, n int) (model.Reference, error) {
	id := fmt.Sprintf("ref-%d", n)
	if raw, ok := item["id"]; ok {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return model.Reference{}, eris.Wrapf(err, "ingest: reference %d id", n)
		}
		if s := model.Stringify(model.ParseValue(v)); s != "" {
			id = s
		}
	}

	if raw, ok := item["metadata"]; ok {
		var md model.Metadata
		if err := json.Unmarshal(raw, &md); err != nil {
			return model.Reference{}, eris.Wrapf(err, "ingest: reference %s metadata", id)
		}
		return model.Reference{ID: id, Metadata: md}, nil
	}

	md := make(model.Metadata, len(item))
	for k, raw := range item {
		if k == "id" {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return model.Reference{}, eris.Wrapf(err, "ingest: reference %s field %s", id, k)
		}
		md[k] = model.ParseValue(v)
	}
	return model.Reference{ID: id, Metadata: md}, nil
}

// ReferencesFromRows converts a header row plus data rows into references.
// Header cells name CSL fields; an "id" column supplies reference ids, and
// rows without one are numbered. Blank cells are left out of the metadata.
func ReferencesFromRows(rows [][]string) ([]model.Reference, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	if len(strings.Join(header, "")) == 0 {
		return nil, eris.New("ingest: header row is empty")
	}

	refs := make([]model.Reference, 0, len(rows)-1)
	for n, row := range rows[1:] {
		ref := model.Reference{ID: fmt.Sprintf("ref-%d", n+1), Metadata: model.Metadata{}}
		for i, cell := range row {
			if i >= len(header) || header[i] == "" || cell == "" {
				continue
			}
			if strings.EqualFold(header[i], "id") {
				ref.ID = cell
				continue
			}
			ref.Metadata[header[i]] = cellValue(header[i], cell)
		}
		if len(ref.Metadata) == 0 {
			zap.L().Debug("ingest: skipping empty row", zap.Int("row", n+2))
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func cellValue(field, cell string) model.Value {
	switch {
	case nameFields[field]:
		var names model.List
		for _, part := range strings.Split(cell, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if family, given, ok := strings.Cut(part, ","); ok {
				names = append(names, model.Name{Family: strings.TrimSpace(family), Given: strings.TrimSpace(given)})
			} else {
				names = append(names, model.Name{Literal: part})
			}
		}
		return names
	case dateFields[field]:
		return model.Date{Raw: cell}
	default:
		return model.Text(cell)
	}
}

// LoadCandidates reads a JSON object of the form {"<referenceId>": [candidate, …]}.
func LoadCandidates(path string) (map[string][]model.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	cands, err := DecodeJSONObject[map[string][]model.Candidate](f)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	return *cands, nil
}
