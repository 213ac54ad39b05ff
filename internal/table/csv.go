package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	stdErrors "errors"
	"io"
	"os"

	xerrors "SheetQueue/internal/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvCodec 处理逗号或制表符分隔的文本表格。所有单元格按字符串读取，空单元格为 nil。
type csvCodec struct {
	comma rune
}

func (c csvCodec) decode(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyOpenError(err, path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.Comma = c.comma
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if stdErrors.Is(err, io.EOF) {
		return nil, xerrors.New(xerrors.CodeSchemaError, "表头为空",
			xerrors.WithMetadata("location", path))
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeParseError, err, "解析表头失败",
			xerrors.WithMetadata("location", path))
	}
	header := trimHeader(first)

	var rows [][]any
	for {
		record, err := reader.Read()
		if stdErrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeParseError, err, "解析数据行失败",
				xerrors.WithMetadata("location", path))
		}
		row := make([]any, len(record))
		for i, field := range record {
			if field != "" {
				row[i] = field
			}
		}
		rows = append(rows, row)
	}
	return New(header, rows)
}

func (c csvCodec) encode(_ string, t *Table, w io.Writer) error {
	writer := csv.NewWriter(w)
	writer.Comma = c.comma
	if err := writer.Write(t.header); err != nil {
		return err
	}
	record := make([]string, len(t.header))
	for _, row := range t.rows {
		for i, v := range row {
			record[i] = Normalize(v)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// trimHeader 去掉表头末尾的空白列名，电子表格导出时常见。
func trimHeader(cells []string) []string {
	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return append([]string(nil), cells[:end]...)
}
