package table

import (
	"encoding/json"
	stdErrors "errors"
	"math"
	"strconv"
	"strings"

	xerrors "SheetQueue/internal/errors"
)

var errRowOverflow = stdErrors.New("row has non-empty cells beyond the header")

// Table 是一次加载得到的表格快照：固定的表头加上按存储顺序排列的数据行。
// 每一行的宽度总是与表头一致。
type Table struct {
	header []string
	index  map[string]int
	rows   [][]any
}

// New 校验表头并构造表格。短行以 nil 补齐；超出表头的非空单元格视为格式错误。
func New(header []string, rows [][]any) (*Table, error) {
	if len(header) == 0 {
		return nil, xerrors.New(xerrors.CodeSchemaError, "表头为空")
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		if name == "" {
			return nil, xerrors.Newf(xerrors.CodeSchemaError, "第 %d 列缺少列名", i+1)
		}
		if _, dup := index[name]; dup {
			return nil, xerrors.Newf(xerrors.CodeSchemaError, "列名重复: %s", name)
		}
		index[name] = i
	}

	t := &Table{
		header: append([]string(nil), header...),
		index:  index,
		rows:   make([][]any, 0, len(rows)),
	}
	for i, raw := range rows {
		row, err := fitRow(raw, len(header))
		if err != nil {
			// 数据行从文件第 2 行开始。
			return nil, xerrors.Wrap(xerrors.CodeParseError, err, "第 "+strconv.Itoa(i+2)+" 行超出表头宽度")
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func fitRow(raw []any, width int) ([]any, error) {
	row := make([]any, width)
	copy(row, raw)
	for j := width; j < len(raw); j++ {
		if Normalize(raw[j]) != "" {
			return nil, errRowOverflow
		}
	}
	return row, nil
}

// Header 返回表头副本。
func (t *Table) Header() []string {
	return append([]string(nil), t.header...)
}

// Len 返回数据行数量。
func (t *Table) Len() int {
	return len(t.rows)
}

// Column 返回列名对应的下标，列名区分大小写。
func (t *Table) Column(name string) (int, bool) {
	idx, ok := t.index[name]
	return idx, ok
}

// Require 确认所有列都存在，否则返回 SCHEMA_ERROR。
func (t *Table) Require(columns ...string) error {
	for _, name := range columns {
		if _, ok := t.index[name]; !ok {
			return xerrors.New(xerrors.CodeSchemaError, "缺少必需列: "+name,
				xerrors.WithMetadata("column", name))
		}
	}
	return nil
}

// Row 返回第 i 个数据行（从 0 开始）的只读视图。
func (t *Table) Row(i int) Row {
	return Row{index: i, header: t.header, values: t.rows[i]}
}

// Value 返回指定行、指定列的单元格值。
func (t *Table) Value(i int, column string) (any, bool) {
	idx, ok := t.index[column]
	if !ok || i < 0 || i >= len(t.rows) {
		return nil, false
	}
	return t.rows[i][idx], true
}

// Set 修改单元格。列不存在返回 SCHEMA_ERROR。
func (t *Table) Set(i int, column string, value any) error {
	idx, ok := t.index[column]
	if !ok {
		return xerrors.New(xerrors.CodeSchemaError, "缺少列: "+column)
	}
	if i < 0 || i >= len(t.rows) {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "行下标越界: %d", i)
	}
	t.rows[i][idx] = value
	return nil
}

// Clone 深拷贝行数据；单元格值本身是不可变的标量。
func (t *Table) Clone() *Table {
	rows := make([][]any, len(t.rows))
	for i, row := range t.rows {
		rows[i] = append([]any(nil), row...)
	}
	index := make(map[string]int, len(t.index))
	for k, v := range t.index {
		index[k] = v
	}
	return &Table{header: append([]string(nil), t.header...), index: index, rows: rows}
}

// Row 是某个数据行的快照视图。
type Row struct {
	index  int
	header []string
	values []any
}

// Index 返回行在表格中的位置（从 0 开始）。
func (r Row) Index() int { return r.index }

// Get 按列名取值。
func (r Row) Get(column string) (any, bool) {
	for i, name := range r.header {
		if name == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// Values 按表头顺序返回单元格副本。
func (r Row) Values() []any {
	return append([]any(nil), r.values...)
}

// Map 返回列名到单元格值的映射，即 /next-row 的响应体。
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.header))
	for i, name := range r.header {
		out[name] = r.values[i]
	}
	return out
}

// MarshalJSON 将行编码为 JSON 对象。
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// Normalize 把单元格值转换为用于比较的字符串形式：
// nil 为空串，整数值的浮点数不带小数部分，使存储中的 7 与调用方传入的 "7" 相等。
func Normalize(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		// 超出 int64 的整数字面量按原文比较，避免经 float64 丢失精度。
		if !strings.ContainsAny(val.String(), ".eE") {
			return val.String()
		}
		if f, err := val.Float64(); err == nil {
			return formatFloat(f)
		}
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// maxSafeInteger 是 float64 能精确表示的最大整数 2^53。
const maxSafeInteger = 1 << 53

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) <= maxSafeInteger {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
