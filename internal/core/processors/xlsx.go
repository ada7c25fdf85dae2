package processors

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// readXLSX parses an OOXML workbook by reading sheet XML straight from the
// ZIP archive: xl/workbook.xml for sheet names, xl/sharedStrings.xml for the
// string table, xl/worksheets/sheetN.xml for cells.
func readXLSX(data []byte) ([]sheet, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx archive: %w", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	names, err := readSheetNames(files["xl/workbook.xml"])
	if err != nil {
		return nil, err
	}

	shared, err := readSharedStrings(files["xl/sharedStrings.xml"])
	if err != nil {
		return nil, err
	}

	// Worksheet parts are conventionally xl/worksheets/sheet1.xml,
	// sheet2.xml, ... in workbook order.
	var paths []string
	for name := range files {
		if strings.HasPrefix(name, "xl/worksheets/sheet") && strings.HasSuffix(name, ".xml") {
			paths = append(paths, name)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("xlsx archive has no worksheets")
	}
	sort.Slice(paths, func(i, j int) bool {
		return sheetOrdinal(paths[i]) < sheetOrdinal(paths[j])
	})

	var sheets []sheet
	for i, path := range paths {
		rows, err := readWorksheet(files[path], shared)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		name := fmt.Sprintf("Sheet%d", i+1)
		if i < len(names) {
			name = names[i]
		}
		sheets = append(sheets, sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

// sheetOrdinal extracts N from "xl/worksheets/sheetN.xml"; malformed names
// sort last.
func sheetOrdinal(path string) int {
	s := strings.TrimSuffix(strings.TrimPrefix(path, "xl/worksheets/sheet"), ".xml")
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 1 << 30
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func readSheetNames(f *zip.File) ([]string, error) {
	if f == nil {
		return nil, fmt.Errorf("xl/workbook.xml not found in archive")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var names []string
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sheet" {
			for _, attr := range se.Attr {
				if attr.Name.Local == "name" {
					names = append(names, attr.Value)
				}
			}
		}
	}
	return names, nil
}

// readSharedStrings returns the workbook string table. Each <si> entry may
// hold one <t> or several rich-text runs; runs are concatenated.
func readSharedStrings(f *zip.File) ([]string, error) {
	if f == nil {
		return nil, nil // workbooks without string cells omit the part
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		strs    []string
		current strings.Builder
		inSI    bool
		inT     bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				inSI = true
				current.Reset()
			case "t":
				inT = inSI
			}
		case xml.CharData:
			if inT {
				current.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inT = false
			case "si":
				inSI = false
				strs = append(strs, current.String())
			}
		}
	}
	return strs, nil
}

// readWorksheet walks one sheet's XML and materializes its rows. Cell
// references (A1, B3, ...) give the column; gaps are padded with empty
// strings so every row lines up.
func readWorksheet(f *zip.File, shared []string) ([][]string, error) {
	if f == nil {
		return nil, fmt.Errorf("worksheet part missing")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		rows     [][]string
		row      []string
		cellType string
		cellCol  int
		inV      bool
		inIS     bool
		inT      bool
		cellVal  strings.Builder
	)

	flushCell := func() {
		for len(row) < cellCol {
			row = append(row, "")
		}
		val := cellVal.String()
		if cellType == "s" {
			idx := 0
			for _, r := range val {
				if r < '0' || r > '9' {
					idx = -1
					break
				}
				idx = idx*10 + int(r-'0')
			}
			if idx >= 0 && idx < len(shared) {
				val = shared[idx]
			}
		}
		row = append(row, val)
	}

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				row = nil
			case "c":
				cellType = ""
				cellCol = len(row)
				cellVal.Reset()
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "t":
						cellType = attr.Value
					case "r":
						cellCol = columnIndex(attr.Value)
					}
				}
			case "v":
				inV = true
			case "is":
				inIS = true
			case "t":
				inT = inIS
			}
		case xml.CharData:
			if inV || inT {
				cellVal.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v":
				inV = false
			case "t":
				inT = false
			case "is":
				inIS = false
			case "c":
				flushCell()
			case "row":
				if len(row) > 0 {
					rows = append(rows, row)
				}
			}
		}
	}
	return rows, nil
}

// columnIndex converts the letter part of a cell reference to a zero-based
// column ("A1" → 0, "AB3" → 27).
func columnIndex(ref string) int {
	col := 0
	for _, r := range ref {
		if r >= 'A' && r <= 'Z' {
			col = col*26 + int(r-'A') + 1
			continue
		}
		if r >= 'a' && r <= 'z' {
			col = col*26 + int(r-'a') + 1
			continue
		}
		break
	}
	if col == 0 {
		return 0
	}
	return col - 1
}
