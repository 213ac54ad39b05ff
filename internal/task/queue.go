package task

import (
	"strings"

	"SheetQueue/internal/table"
)

// Next 按表格顺序返回第一条状态不等于 doneValue 的行。
// 比较前先规范化单元格，忽略大小写，不去除空白；空单元格视为未完成。
func Next(t *table.Table, statusColumn, doneValue string) (Selection, error) {
	if statusColumn == "" {
		statusColumn = DefaultStatusColumn
	}
	if doneValue == "" {
		doneValue = DefaultDoneValue
	}
	if t == nil {
		return Selection{}, nil
	}
	if err := t.Require(statusColumn); err != nil {
		return Selection{}, err
	}
	for i := 0; i < t.Len(); i++ {
		v, _ := t.Value(i, statusColumn)
		if !isDone(v, doneValue) {
			return Selection{Row: t.Row(i), Found: true}, nil
		}
	}
	return Selection{}, nil
}

func isDone(status any, doneValue string) bool {
	return strings.EqualFold(table.Normalize(status), doneValue)
}
