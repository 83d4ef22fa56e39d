package export

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

const maxSheetName = 31

// XLSXSink writes every collection to its own sheet. Columns are the item
// keys in first-seen order; the workbook is saved on Close.
type XLSXSink struct {
	path        string
	f           *excelize.File
	headerStyle int
	sheets      map[string]*sheet
}

type sheet struct {
	name    string
	columns []string
	index   map[string]int
	row     int
}

func NewXLSXSink(path string) (*XLSXSink, error) {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("export: header style: %w", err)
	}
	return &XLSXSink{path: path, f: f, headerStyle: style, sheets: map[string]*sheet{}}, nil
}

func (s *XLSXSink) Write(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh, err := s.sheet(b.Collection)
	if err != nil {
		return err
	}

	for _, item := range b.Items {
		for _, key := range sortedKeys(item) {
			if _, ok := sh.index[key]; !ok {
				if err := s.addColumn(sh, key); err != nil {
					return err
				}
			}
		}
		sh.row++
		for key, v := range item {
			cell := columnName(sh.index[key]+1) + strconv.Itoa(sh.row)
			if err := s.f.SetCellValue(sh.name, cell, cellValue(v)); err != nil {
				return fmt.Errorf("export: set %s!%s: %w", sh.name, cell, err)
			}
		}
	}
	return nil
}

func (s *XLSXSink) sheet(collection string) (*sheet, error) {
	if sh, ok := s.sheets[collection]; ok {
		return sh, nil
	}
	name := sheetName(collection)
	idx, err := s.f.NewSheet(name)
	if err != nil {
		return nil, fmt.Errorf("export: create sheet %s: %w", name, err)
	}
	if len(s.sheets) == 0 {
		s.f.SetActiveSheet(idx)
		if name != "Sheet1" {
			if err := s.f.DeleteSheet("Sheet1"); err != nil {
				return nil, fmt.Errorf("export: delete default sheet: %w", err)
			}
		}
	}
	sh := &sheet{name: name, index: map[string]int{}, row: 1}
	s.sheets[collection] = sh
	return sh, nil
}

func (s *XLSXSink) addColumn(sh *sheet, key string) error {
	col := columnName(len(sh.columns) + 1)
	sh.index[key] = len(sh.columns)
	sh.columns = append(sh.columns, key)

	cell := col + "1"
	if err := s.f.SetCellValue(sh.name, cell, key); err != nil {
		return fmt.Errorf("export: header %s: %w", key, err)
	}
	if err := s.f.SetCellStyle(sh.name, cell, cell, s.headerStyle); err != nil {
		return fmt.Errorf("export: header style %s: %w", key, err)
	}
	return s.f.SetColWidth(sh.name, col, col, 15)
}

func (s *XLSXSink) Close() error {
	defer s.f.Close()
	if len(s.sheets) == 0 {
		return nil
	}
	if err := s.f.SaveAs(s.path); err != nil {
		return fmt.Errorf("export: save %s: %w", s.path, err)
	}
	return nil
}

// ReadXLSX loads a sheet written by XLSXSink. Cells come back as strings;
// empty cells are omitted.
func ReadXLSX(path, collection string) ([]query.Item, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if collection != "" {
		name = sheetName(collection)
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("export: read %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	items := make([]query.Item, 0, len(rows)-1)
	for _, row := range rows[1:] {
		item := query.Item{}
		for i, v := range row {
			if i < len(header) && v != "" {
				item[header[i]] = v
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string, bool, float64, float32, int, int64, int32, uint64, json.Number, time.Time:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func sheetName(collection string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, collection)
	if name == "" {
		name = "Sheet1"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

func sortedKeys(item query.Item) []string {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// columnName converts a 1-based column index to its letter form (27 -> AA).
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}
