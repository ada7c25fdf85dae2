package processors

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"time"

	"code.sajari.com/docconv"

	"github.com/doclyn/doclyn/internal/core"
	"github.com/doclyn/doclyn/internal/core/chunker"
	"github.com/doclyn/doclyn/internal/models"
)

// linesPerChunk is the fixed group size for spreadsheet chunking. Row
// semantics matter more than token density here, so chunks are line groups,
// not token windows.
const linesPerChunk = 50

// sheet is one tabular unit: a whole CSV file, or one worksheet of a workbook.
type sheet struct {
	Name string
	Rows [][]string
}

// SpreadsheetProcessor handles csv/tsv natively and xlsx workbooks via the
// OOXML archive. Legacy .xls goes through docconv.
type SpreadsheetProcessor struct{}

var _ core.FileProcessor = (*SpreadsheetProcessor)(nil)

func NewSpreadsheetProcessor() *SpreadsheetProcessor { return &SpreadsheetProcessor{} }

func (p *SpreadsheetProcessor) Type() string { return "spreadsheet" }

func (p *SpreadsheetProcessor) Extensions() []string {
	return []string{"xlsx", "xls", "csv", "tsv"}
}

func (p *SpreadsheetProcessor) MimeTypes() []string {
	return []string{
		"text/csv",
		"text/tab-separated-values",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
	}
}

func (p *SpreadsheetProcessor) Icon() string { return "file-spreadsheet" }

func (p *SpreadsheetProcessor) Extract(ctx context.Context, data []byte, fileName string, opts core.ExtractOptions) (*models.ProcessedContent, error) {
	var (
		sheets   []sheet
		mimeType string
		err      error
	)

	switch normalizeExt(fileName) {
	case "tsv":
		mimeType = "text/tab-separated-values"
		sheets, err = readDelimited(data, '\t')
	case "xlsx":
		mimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		sheets, err = readXLSX(data)
	case "xls":
		mimeType = "application/vnd.ms-excel"
		sheets, err = readXLS(data)
	default:
		mimeType = "text/csv"
		sheets, err = readDelimited(data, ',')
	}
	if err != nil {
		return nil, models.NewExtractionFailed("spreadsheet is unreadable", err)
	}
	if len(sheets) == 0 {
		return nil, models.NewExtractionFailed("workbook contains no sheets", nil)
	}

	var (
		tables     []models.ExtractedTable
		sheetNames []string
		textParts  []string
		chunks     []models.ContentChunk
		lineBase   int
	)
	for _, s := range sheets {
		sheetNames = append(sheetNames, s.Name)
		tables = append(tables, tableFromSheet(s))

		lines := make([]string, 0, len(s.Rows))
		for _, row := range s.Rows {
			lines = append(lines, strings.Join(row, "\t"))
		}
		textParts = append(textParts, "Sheet: "+s.Name+"\n"+strings.Join(lines, "\n"))

		for _, ch := range chunker.ChunkLines(lines, fileName, linesPerChunk, chunker.Options{
			Type:    "table",
			Section: s.Name,
		}) {
			// Positions and line offsets restart per ChunkLines call; keep
			// both global across sheets so ordering holds workbook-wide.
			ch.Position = len(chunks)
			ch.StartIndex += lineBase
			ch.EndIndex += lineBase
			chunks = append(chunks, ch)
		}
		lineBase += len(lines)
	}

	return &models.ProcessedContent{
		Text:   strings.Join(textParts, "\n\n"),
		Chunks: chunks,
		Tables: tables,
		Metadata: models.FileMetadata{
			FileName:    fileName,
			FileType:    p.Type(),
			MimeType:    mimeType,
			SizeBytes:   len(data),
			SheetNames:  sheetNames,
			ExtractedAt: time.Now(),
		},
	}, nil
}

// tableFromSheet treats the first row as headers and the rest as data rows.
func tableFromSheet(s sheet) models.ExtractedTable {
	t := models.ExtractedTable{Caption: s.Name}
	if len(s.Rows) > 0 {
		t.Headers = s.Rows[0]
		t.Rows = s.Rows[1:]
	}
	return t
}

// readDelimited parses a single-sheet delimited file (csv or tsv).
func readDelimited(data []byte, comma rune) ([]sheet, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1 // ragged rows are common in exports

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return []sheet{{Name: "Sheet1", Rows: rows}}, nil
}

// readXLS converts a legacy binary workbook through docconv and splits the
// flat text back into tab-separated rows.
func readXLS(data []byte) ([]sheet, error) {
	res, err := docconv.Convert(bytes.NewReader(data), "application/vnd.ms-excel", false)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for _, line := range strings.Split(res.Body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return []sheet{{Name: "Sheet1", Rows: rows}}, nil
}
