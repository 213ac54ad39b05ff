package table

import (
	stdErrors "errors"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	xerrors "SheetQueue/internal/errors"
)

// xlsxCodec 读写工作簿的活动工作表。数值单元格读为 float64，布尔单元格读为 bool。
type xlsxCodec struct{}

func (xlsxCodec) decode(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeParseError, err, "打开工作簿失败",
			xerrors.WithMetadata("location", path))
	}
	defer f.Close()

	header, rows, err := readSheet(f, activeSheet(f))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeParseError, err, "读取工作表失败",
			xerrors.WithMetadata("location", path))
	}
	if header == nil {
		return nil, xerrors.New(xerrors.CodeSchemaError, "表头为空",
			xerrors.WithMetadata("location", path))
	}
	return New(header, rows)
}

// encode 重新打开目标工作簿，只改写值发生变化的单元格，保留样式和其他工作表。
// 目标不存在时新建工作簿。
func (xlsxCodec) encode(path string, t *Table, w io.Writer) error {
	f, err := excelize.OpenFile(path)
	if stdErrors.Is(err, fs.ErrNotExist) {
		f = excelize.NewFile()
	} else if err != nil {
		return err
	}
	defer f.Close()

	sheet := activeSheet(f)
	currentHeader, currentRows, err := readSheet(f, sheet)
	if err != nil {
		return err
	}

	for col, name := range t.header {
		var current any
		if col < len(currentHeader) {
			current = currentHeader[col]
		}
		if err := setIfChanged(f, sheet, col, 0, current, name); err != nil {
			return err
		}
	}
	for r, row := range t.rows {
		var current []any
		if r < len(currentRows) {
			current = currentRows[r]
		}
		for col, v := range row {
			var existing any
			if col < len(current) {
				existing = current[col]
			}
			if err := setIfChanged(f, sheet, col, r+1, existing, v); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

func setIfChanged(f *excelize.File, sheet string, col, row int, current, want any) error {
	if Normalize(current) == Normalize(want) {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	if want == nil {
		return f.SetCellStr(sheet, cell, "")
	}
	return f.SetCellValue(sheet, cell, want)
}

func activeSheet(f *excelize.File) string {
	if name := f.GetSheetName(f.GetActiveSheetIndex()); name != "" {
		return name
	}
	return f.GetSheetName(0)
}

// readSheet 返回表头与数据行；工作表为空时 header 为 nil。
func readSheet(f *excelize.File, sheet string) ([]string, [][]any, error) {
	if sheet == "" {
		return nil, nil, stdErrors.New("workbook has no sheets")
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 {
		return nil, nil, nil
	}
	header := trimHeader(raw[0])
	if len(header) == 0 {
		return nil, nil, nil
	}

	rows := make([][]any, 0, len(raw)-1)
	for r := 1; r < len(raw); r++ {
		row := make([]any, len(raw[r]))
		for c, value := range raw[r] {
			v, err := decodeCell(f, sheet, c, r, value)
			if err != nil {
				return nil, nil, err
			}
			row[c] = v
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func decodeCell(f *excelize.File, sheet string, col, row int, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return nil, err
	}
	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return nil, err
	}
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n, nil
		}
	}
	return raw, nil
}
