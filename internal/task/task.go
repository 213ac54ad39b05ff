package task

import (
	"strings"

	xerrors "SheetQueue/internal/errors"
	"SheetQueue/internal/table"
)

// 默认列名与取值。列名区分大小写，状态值比较不区分大小写。
const (
	DefaultIDColumn     = "Id"
	DefaultStatusColumn = "Status"
	DefaultDoneValue    = "done"
	DefaultDoneMarker   = "Done"
)

// Columns 描述队列依赖的列及完成标记。
type Columns struct {
	ID         string
	Status     string
	DoneValue  string
	DoneMarker string
}

// DefaultColumns 返回默认列配置。
func DefaultColumns() Columns {
	return Columns{
		ID:         DefaultIDColumn,
		Status:     DefaultStatusColumn,
		DoneValue:  DefaultDoneValue,
		DoneMarker: DefaultDoneMarker,
	}
}

// withDefaults 为空字段填入默认值。
func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.ID == "" {
		c.ID = d.ID
	}
	if c.Status == "" {
		c.Status = d.Status
	}
	if c.DoneValue == "" {
		c.DoneValue = d.DoneValue
	}
	if c.DoneMarker == "" {
		c.DoneMarker = d.DoneMarker
	}
	return c
}

// Validate 确认写入的完成标记会被 DoneValue 判定为已完成，保证完成状态单向不回退。
func (c Columns) Validate() error {
	if !strings.EqualFold(c.DoneMarker, c.DoneValue) {
		return xerrors.Newf(xerrors.CodeInvalidArgument,
			"完成标记 %q 与完成值 %q 不匹配", c.DoneMarker, c.DoneValue)
	}
	return nil
}

// Selection 是 Next 的结果，Found 为 false 表示没有待处理的行。
type Selection struct {
	Row   table.Row
	Found bool
}

// Completion 是 MarkDone 的结果。
type Completion struct {
	Row         table.Row
	AlreadyDone bool
}

// CodeIDNotFound 表示表格中没有匹配的 Id。
const CodeIDNotFound xerrors.Code = "ID_NOT_FOUND"

// ErrIDNotFound 可用于 errors.Is 判断。
var ErrIDNotFound = xerrors.New(CodeIDNotFound, "Id not found")

func init() {
	xerrors.Register(CodeIDNotFound, xerrors.Attributes{
		Message:   "Id not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}
