package processors

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/models"
)

func TestRegistry_LookupByExtension(t *testing.T) {
	r := NewDefaultRegistry()

	cases := map[string]string{
		"report.pdf":    "pdf",
		"notes.TXT":     "text",
		"readme.md":     "text",
		"deck.pptx":     "document",
		"letter.docx":   "document",
		"budget.xlsx":   "spreadsheet",
		"budget.xls":    "spreadsheet",
		"export.csv":    "spreadsheet",
		"diagram.png":   "image",
		"photo.jpeg":    "image",
		"archive.tar.gz": "",
		"unsupported.xyz": "",
		"noextension":   "",
	}
	for fileName, want := range cases {
		p := r.Lookup(fileName, "")
		if want == "" {
			assert.Nil(t, p, "expected no processor for %s", fileName)
			continue
		}
		require.NotNil(t, p, "expected processor for %s", fileName)
		assert.Equal(t, want, p.Type(), "wrong processor for %s", fileName)
	}
}

func TestRegistry_MimeFallback(t *testing.T) {
	r := NewDefaultRegistry()

	p := r.Lookup("download.bin", "application/pdf")
	require.NotNil(t, p)
	assert.Equal(t, "pdf", p.Type())

	// Extension wins over MIME when both match.
	p = r.Lookup("notes.txt", "application/pdf")
	require.NotNil(t, p)
	assert.Equal(t, "text", p.Type())

	assert.Nil(t, r.Lookup("download.bin", "application/x-unknown"))
}

func TestRegistry_SupportedTypes(t *testing.T) {
	r := NewDefaultRegistry()

	infos := r.SupportedTypes()
	require.Len(t, infos, 5)

	types := make([]string, len(infos))
	for i, info := range infos {
		types[i] = info.Type
		assert.NotEmpty(t, info.Extensions)
		assert.NotEmpty(t, info.Icon)
	}
	assert.Equal(t, []string{"pdf", "document", "spreadsheet", "image", "text"}, types)
}

func TestTextProcessor_SingleSentence(t *testing.T) {
	p := NewTextProcessor()
	text := "This is a test document with some content..."

	content, err := p.Extract(context.Background(), []byte(text), "sample.txt", core.ExtractOptions{})
	require.NoError(t, err)

	require.Len(t, content.Chunks, 1)
	assert.Equal(t, text, content.Chunks[0].Content)
	assert.Equal(t, "text", content.Chunks[0].Metadata.Type)
	assert.Equal(t, 1.0, content.Chunks[0].Metadata.Confidence)
	assert.Equal(t, "text", content.Metadata.FileType)
	assert.Equal(t, len(text), content.Metadata.SizeBytes)
}

func TestTextProcessor_InvalidUTF8(t *testing.T) {
	p := NewTextProcessor()

	_, err := p.Extract(context.Background(), []byte{0xff, 0xfe, 0xfd}, "bad.txt", core.ExtractOptions{})
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodeExtractionFailed, perr.Code)
	assert.True(t, perr.Retryable)
}

func TestTextProcessor_ChunkBounds(t *testing.T) {
	p := NewTextProcessor()
	text := strings.Repeat("word ", 2000)

	content, err := p.Extract(context.Background(), []byte(text), "long.txt", core.ExtractOptions{})
	require.NoError(t, err)

	assert.Greater(t, len(content.Chunks), 1)
	for _, ch := range content.Chunks {
		assert.LessOrEqual(t, ch.Tokens, 1000)
		assert.NotEmpty(t, strings.TrimSpace(ch.Content))
	}
}

func TestImageProcessor_PlaceholderChunk(t *testing.T) {
	p := NewImageProcessor()
	data := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}

	content, err := p.Extract(context.Background(), data, "chart.png", core.ExtractOptions{})
	require.NoError(t, err)

	require.Len(t, content.Chunks, 1)
	assert.Equal(t, "image", content.Chunks[0].Metadata.Type)
	assert.Equal(t, 0.8, content.Chunks[0].Metadata.Confidence)
	assert.False(t, content.Chunks[0].CreatedAt.IsZero())
	assert.Contains(t, content.Chunks[0].Content, base64.StdEncoding.EncodeToString(data))

	require.Len(t, content.Images, 1)
	assert.Equal(t, "image/png", content.Images[0].MimeType)

	decoded, err := base64.StdEncoding.DecodeString(content.Images[0].Base64Data)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestImageProcessor_Empty(t *testing.T) {
	p := NewImageProcessor()
	_, err := p.Extract(context.Background(), nil, "empty.png", core.ExtractOptions{})
	assert.Error(t, err)
}

func TestSpreadsheetProcessor_CSV(t *testing.T) {
	p := NewSpreadsheetProcessor()
	csvData := "name,age,city\nAda,36,London\nGrace,45,Arlington\n"

	content, err := p.Extract(context.Background(), []byte(csvData), "people.csv", core.ExtractOptions{})
	require.NoError(t, err)

	require.Len(t, content.Tables, 1)
	assert.Equal(t, []string{"name", "age", "city"}, content.Tables[0].Headers)
	require.Len(t, content.Tables[0].Rows, 2)
	assert.Equal(t, []string{"Ada", "36", "London"}, content.Tables[0].Rows[0])
	assert.Equal(t, "Sheet1", content.Tables[0].Caption)

	require.Len(t, content.Chunks, 1)
	assert.Equal(t, "table", content.Chunks[0].Metadata.Type)
	assert.Equal(t, "Sheet1", content.Chunks[0].Metadata.Section)
}

func TestSpreadsheetProcessor_LineGroups(t *testing.T) {
	p := NewSpreadsheetProcessor()

	var sb strings.Builder
	sb.WriteString("id,value\n")
	for i := 0; i < 120; i++ {
		sb.WriteString("1,x\n")
	}

	content, err := p.Extract(context.Background(), []byte(sb.String()), "big.csv", core.ExtractOptions{})
	require.NoError(t, err)

	// 121 lines in 50-line groups: 50 + 50 + 21.
	require.Len(t, content.Chunks, 3)
	assert.Equal(t, 0, content.Chunks[0].StartIndex)
	assert.Equal(t, 50, content.Chunks[0].EndIndex)
	assert.Equal(t, 100, content.Chunks[2].StartIndex)
	assert.Equal(t, 121, content.Chunks[2].EndIndex)
	for i, ch := range content.Chunks {
		assert.Equal(t, i, ch.Position)
	}
}

func TestSpreadsheetProcessor_XLSX(t *testing.T) {
	p := NewSpreadsheetProcessor()
	data := buildTestXLSX(t)

	content, err := p.Extract(context.Background(), data, "book.xlsx", core.ExtractOptions{})
	require.NoError(t, err)

	require.Len(t, content.Tables, 1)
	assert.Equal(t, "Expenses", content.Tables[0].Caption)
	assert.Equal(t, []string{"item", "cost"}, content.Tables[0].Headers)
	require.Len(t, content.Tables[0].Rows, 2)
	assert.Equal(t, []string{"coffee", "3.50"}, content.Tables[0].Rows[0])
	assert.Equal(t, []string{"paper", "12"}, content.Tables[0].Rows[1])

	assert.Equal(t, []string{"Expenses"}, content.Metadata.SheetNames)
}

func TestSpreadsheetProcessor_MultiSheetOffsets(t *testing.T) {
	p := NewSpreadsheetProcessor()
	data := buildMultiSheetXLSX(t, 60, 1)

	content, err := p.Extract(context.Background(), data, "multi.xlsx", core.ExtractOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"One", "Two"}, content.Metadata.SheetNames)
	require.Len(t, content.Tables, 2)

	// 60 lines on sheet One (two groups), 1 line on sheet Two; line offsets
	// are workbook-global, so Two continues where One left off.
	require.Len(t, content.Chunks, 3)
	assert.Equal(t, 0, content.Chunks[0].StartIndex)
	assert.Equal(t, 50, content.Chunks[0].EndIndex)
	assert.Equal(t, "One", content.Chunks[0].Metadata.Section)
	assert.Equal(t, 50, content.Chunks[1].StartIndex)
	assert.Equal(t, 60, content.Chunks[1].EndIndex)
	assert.Equal(t, 60, content.Chunks[2].StartIndex)
	assert.Equal(t, 61, content.Chunks[2].EndIndex)
	assert.Equal(t, "Two", content.Chunks[2].Metadata.Section)

	prevStart := -1
	for i, ch := range content.Chunks {
		assert.Equal(t, i, ch.Position)
		assert.GreaterOrEqual(t, ch.StartIndex, prevStart)
		prevStart = ch.StartIndex
	}
}

func TestSpreadsheetProcessor_CorruptXLSX(t *testing.T) {
	p := NewSpreadsheetProcessor()

	_, err := p.Extract(context.Background(), []byte("not a zip archive"), "bad.xlsx", core.ExtractOptions{})
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodeExtractionFailed, perr.Code)
}

func TestPDFProcessor_CorruptInput(t *testing.T) {
	p := NewPDFProcessor()

	_, err := p.Extract(context.Background(), []byte("definitely not a pdf"), "bad.pdf", core.ExtractOptions{})
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodeExtractionFailed, perr.Code)
	assert.True(t, perr.Retryable)
}

func TestOfficeProcessor_CorruptInput(t *testing.T) {
	p := NewOfficeProcessor()

	_, err := p.Extract(context.Background(), []byte("not an archive"), "bad.docx", core.ExtractOptions{})
	require.Error(t, err)

	var perr *models.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.CodeExtractionFailed, perr.Code)
}

func TestMarkPages(t *testing.T) {
	marked := markPages("first page\fsecond page\f")
	assert.Contains(t, marked, "--- Page 1 ---\nfirst page")
	assert.Contains(t, marked, "--- Page 2 ---\nsecond page")
	assert.NotContains(t, marked, "--- Page 3 ---")
}

func TestColumnIndex(t *testing.T) {
	assert.Equal(t, 0, columnIndex("A1"))
	assert.Equal(t, 1, columnIndex("B3"))
	assert.Equal(t, 25, columnIndex("Z9"))
	assert.Equal(t, 26, columnIndex("AA1"))
	assert.Equal(t, 27, columnIndex("AB12"))
}

// buildTestXLSX writes a minimal OOXML workbook with one sheet, shared
// strings, and inline numbers.
func buildTestXLSX(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <sheets><sheet name="Expenses" sheetId="1" r:id="rId1"/></sheets>
</workbook>`,
		"xl/sharedStrings.xml": `<?xml version="1.0"?>
<sst count="3" uniqueCount="3">
  <si><t>item</t></si>
  <si><t>cost</t></si>
  <si><t>coffee</t></si>
</sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>
    <row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>3.50</v></c></row>
    <row r="3"><c r="A3" t="inlineStr"><is><t>paper</t></is></c><c r="B3"><v>12</v></c></row>
  </sheetData>
</worksheet>`,
	}

	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildMultiSheetXLSX writes a workbook with two inline-string sheets named
// One and Two, holding rows1 and rows2 single-cell rows.
func buildMultiSheetXLSX(t *testing.T, rows1, rows2 int) []byte {
	t.Helper()

	sheetXML := func(rows int) string {
		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>`)
		for i := 0; i < rows; i++ {
			fmt.Fprintf(&sb, `<row r="%d"><c r="A%d" t="inlineStr"><is><t>row-%d</t></is></c></row>`, i+1, i+1, i)
		}
		sb.WriteString(`</sheetData>
</worksheet>`)
		return sb.String()
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <sheets>
    <sheet name="One" sheetId="1" r:id="rId1"/>
    <sheet name="Two" sheetId="2" r:id="rId2"/>
  </sheets>
</workbook>`,
		"xl/worksheets/sheet1.xml": sheetXML(rows1),
		"xl/worksheets/sheet2.xml": sheetXML(rows2),
	}

	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
