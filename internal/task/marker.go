package task

import (
	xerrors "SheetQueue/internal/errors"
	"SheetQueue/internal/table"
)

// MarkDone 返回 t 的副本，其中第一条 Id 与 id 匹配的行状态被设为完成标记，t 本身不变。
// Id 以规范化后的字符串比较，存储中的数字 7 与请求中的 "7" 相等。
// 该行已完成时不做修改，Completion.AlreadyDone 为 true。
func MarkDone(t *table.Table, id any, cols Columns) (*table.Table, Completion, error) {
	cols = cols.withDefaults()
	want := table.Normalize(id)
	if want == "" {
		return nil, Completion{}, xerrors.New(xerrors.CodeInvalidArgument, "id 不能为空")
	}
	if t == nil {
		return nil, Completion{}, notFound(want)
	}
	if err := t.Require(cols.ID, cols.Status); err != nil {
		return nil, Completion{}, err
	}

	updated := t.Clone()
	for i := 0; i < updated.Len(); i++ {
		v, _ := updated.Value(i, cols.ID)
		if table.Normalize(v) != want {
			continue
		}
		status, _ := updated.Value(i, cols.Status)
		if isDone(status, cols.DoneValue) {
			return updated, Completion{Row: updated.Row(i), AlreadyDone: true}, nil
		}
		if err := updated.Set(i, cols.Status, cols.DoneMarker); err != nil {
			return nil, Completion{}, err
		}
		return updated, Completion{Row: updated.Row(i)}, nil
	}
	return nil, Completion{}, notFound(want)
}

func notFound(id string) error {
	return xerrors.New(CodeIDNotFound, "", xerrors.WithMetadata("id", id))
}
