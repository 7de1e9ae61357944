package ingest

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReferenceRecord is the Parquet schema accepted for reference files. Name
// columns are lists of "Family, Given" or literal names; issued is a raw date.
type ReferenceRecord struct {
	ID             string   `parquet:"id"`
	Type           string   `parquet:"type"`
	Title          string   `parquet:"title"`
	Author         []string `parquet:"author,list"`
	Editor         []string `parquet:"editor,list"`
	Issued         string   `parquet:"issued"`
	ContainerTitle string   `parquet:"container_title"`
	Volume         string   `parquet:"volume"`
	Issue          string   `parquet:"issue"`
	Page           string   `parquet:"page"`
	Publisher      string   `parquet:"publisher"`
	DOI            string   `parquet:"doi"`
	ISBN           string   `parquet:"isbn"`
	ISSN           string   `parquet:"issn"`
	URL            string   `parquet:"url"`
}

// recordHeader names the CSL variable behind each ReferenceRecord column, in
// the order cells are produced by recordRow.
var recordHeader = []string{
	"id", "type", "title", "author", "editor", "issued", "container-title",
	"volume", "issue", "page", "publisher", "DOI", "ISBN", "ISSN", "URL",
}

func recordRow(r ReferenceRecord) []string {
	return []string{
		r.ID, r.Type, r.Title,
		strings.Join(r.Author, "; "),
		strings.Join(r.Editor, "; "),
		r.Issued, r.ContainerTitle, r.Volume, r.Issue, r.Page, r.Publisher,
		r.DOI, r.ISBN, r.ISSN, r.URL,
	}
}

// ReadParquet reads every ReferenceRecord in the file at path, in batches.
func ReadParquet(path string) ([]ReferenceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open parquet %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: stat %s", path)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: parse parquet %s", path)
	}
	zap.L().Debug("ingest: parquet opened",
		zap.String("path", path),
		zap.Int64("rows", pf.NumRows()),
		zap.Int("row_groups", len(pf.RowGroups())),
	)

	reader := parquet.NewGenericReader[ReferenceRecord](pf)
	defer reader.Close() //nolint:errcheck

	var records []ReferenceRecord
	batch := make([]ReferenceRecord, 128)
	for {
		n, err := reader.Read(batch)
		records = append(records, batch[:n]...)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read parquet %s", path)
		}
	}
}

// recordsToRows lays records out as a header row plus one row per record so
// they go through the same cell handling as CSV and XLSX input.
func recordsToRows(records []ReferenceRecord) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, recordHeader)
	for _, r := range records {
		rows = append(rows, recordRow(r))
	}
	return rows
}
