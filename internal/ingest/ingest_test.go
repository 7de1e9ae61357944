package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/jeffnawroth/source-taster/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("References")
	require.NoError(t, err)
	for _, data := range rows {
		row := sheet.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "refs.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestStreamCSV(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("id, title\nr1,  Deep Learning \n"), CSVOptions{})
	rows, err := collect(rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "title"}, {"r1", "Deep Learning"}}, rows)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := collect(StreamCSV(ctx, strings.NewReader("a,b\n"), CSVOptions{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamCSV_Malformed(t *testing.T) {
	_, err := collect(StreamCSV(context.Background(), strings.NewReader("a,\"b\n"), CSVOptions{}))
	assert.Error(t, err)
}

func TestReferencesFromRows(t *testing.T) {
	rows := [][]string{
		{"id", "title", "author", "issued", "volume", ""},
		{"smith2020", "Deep Learning", "LeCun, Yann; Bengio, Yoshua; World Health Organization", "2015", "521", "ignored"},
		{"", "Attention Is All You Need", "", "", "", ""},
		{"", "", "", "", "", ""},
	}

	refs, err := ReferencesFromRows(rows)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "smith2020", refs[0].ID)
	assert.Equal(t, model.Text("Deep Learning"), refs[0].Metadata["title"])
	assert.Equal(t, model.List{
		model.Name{Family: "LeCun", Given: "Yann"},
		model.Name{Family: "Bengio", Given: "Yoshua"},
		model.Name{Literal: "World Health Organization"},
	}, refs[0].Metadata["author"])
	assert.Equal(t, model.Date{Raw: "2015"}, refs[0].Metadata["issued"])
	assert.Equal(t, model.Text("521"), refs[0].Metadata["volume"])
	assert.Len(t, refs[0].Metadata, 4)

	assert.Equal(t, "ref-2", refs[1].ID)
	assert.Equal(t, []string{"title"}, refs[1].Metadata.Fields())
}

func TestReferencesFromRows_EmptyHeader(t *testing.T) {
	_, err := ReferencesFromRows([][]string{{"", ""}, {"a", "b"}})
	assert.Error(t, err)

	refs, err := ReferencesFromRows(nil)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestDecodeReferences(t *testing.T) {
	input := `[
		{"id": "r1", "metadata": {"title": "Deep Learning", "author": [{"family": "LeCun"}]}},
		{"id": 7, "type": "article-journal", "title": "Attention", "issued": {"date-parts": [[2017]]}},
		{"title": "No id"}
	]`

	refs, err := DecodeReferences(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, refs, 3)

	assert.Equal(t, "r1", refs[0].ID)
	assert.Equal(t, model.List{model.Name{Family: "LeCun"}}, refs[0].Metadata["author"])

	assert.Equal(t, "7", refs[1].ID)
	assert.Equal(t, []string{"issued", "title", "type"}, refs[1].Metadata.Fields())
	assert.IsType(t, model.Date{}, refs[1].Metadata["issued"])

	assert.Equal(t, "ref-3", refs[2].ID)
}

func TestDecodeReferences_NotArray(t *testing.T) {
	_, err := DecodeReferences(context.Background(), strings.NewReader(`{"id": "r1"}`))
	assert.Error(t, err)

	refs, err := DecodeReferences(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestLoadReferences(t *testing.T) {
	ctx := context.Background()

	t.Run("json", func(t *testing.T) {
		path := writeFile(t, "refs.json", `[{"id": "r1", "title": "Deep Learning"}]`)
		refs, err := LoadReferences(ctx, path)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, model.Text("Deep Learning"), refs[0].Metadata["title"])
	})

	t.Run("csv", func(t *testing.T) {
		path := writeFile(t, "refs.csv", "id,title,page\nr1,Deep Learning,436-444\n")
		refs, err := LoadReferences(ctx, path)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, model.Text("436-444"), refs[0].Metadata["page"])
	})

	t.Run("tsv", func(t *testing.T) {
		path := writeFile(t, "refs.tsv", "id\ttitle\nr1\tDeep, Learning\n")
		refs, err := LoadReferences(ctx, path)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, model.Text("Deep, Learning"), refs[0].Metadata["title"])
	})

	t.Run("xlsx", func(t *testing.T) {
		path := createXLSX(t, [][]string{
			{"id", "title", "author"},
			{"r1", "Deep Learning", "LeCun, Yann"},
		})
		refs, err := LoadReferences(ctx, path)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, model.List{model.Name{Family: "LeCun", Given: "Yann"}}, refs[0].Metadata["author"])
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := LoadReferences(ctx, writeFile(t, "refs.txt", "x"))
		assert.Error(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadReferences(ctx, filepath.Join(t.TempDir(), "missing.csv"))
		assert.Error(t, err)
	})
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createXLSX(t, [][]string{{"id"}, {"r1"}})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "References"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Nope"})
	assert.Error(t, err)

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
}

func TestLoadCandidates(t *testing.T) {
	path := writeFile(t, "cands.json", `{
		"r1": [{"id": "W1", "source": "openalex", "metadata": {"title": "Deep learning"}}]
	}`)

	cands, err := LoadCandidates(path)
	require.NoError(t, err)
	require.Len(t, cands["r1"], 1)
	assert.Equal(t, "openalex", cands["r1"][0].Source)

	_, err = LoadCandidates(writeFile(t, "bad.json", `[`))
	assert.Error(t, err)
}

func createParquet(t *testing.T, records []ReferenceRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refs.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[ReferenceRecord](f)
	_, err = w.Write(records)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoadReferences_Parquet(t *testing.T) {
	path := createParquet(t, []ReferenceRecord{
		{
			ID:     "lecun2015",
			Title:  "Deep learning",
			Author: []string{"LeCun, Yann", "Bengio, Yoshua"},
			Issued: "2015",
			Page:   "436-444",
			DOI:    "10.1038/nature14539",
		},
		{Title: "Untitled draft"},
		{},
	})

	refs, err := LoadReferences(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, refs, 2, "the all-empty record is skipped")

	r := refs[0]
	assert.Equal(t, "lecun2015", r.ID)
	assert.Equal(t, model.Text("Deep learning"), r.Metadata["title"])
	assert.Equal(t, model.List{
		model.Name{Family: "LeCun", Given: "Yann"},
		model.Name{Family: "Bengio", Given: "Yoshua"},
	}, r.Metadata["author"])
	assert.Equal(t, model.Date{Raw: "2015"}, r.Metadata["issued"])
	assert.Equal(t, model.Text("10.1038/nature14539"), r.Metadata["DOI"])
	assert.NotContains(t, r.Metadata, "volume")

	assert.Equal(t, "ref-2", refs[1].ID)
}

func TestReadParquet_NotParquet(t *testing.T) {
	_, err := ReadParquet(writeFile(t, "refs.parquet", "not parquet"))
	assert.Error(t, err)

	_, err = ReadParquet(filepath.Join(t.TempDir(), "missing.parquet"))
	assert.Error(t, err)
}
