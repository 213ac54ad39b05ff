package task

import "SheetQueue/internal/table"

// Stats 汇总表格中已完成与待处理的行数。
type Stats struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Pending int `json:"pending"`
}

// Count 统计 t 中各状态的行数，判定规则与 Next 一致。
func Count(t *table.Table, statusColumn, doneValue string) (Stats, error) {
	if statusColumn == "" {
		statusColumn = DefaultStatusColumn
	}
	if doneValue == "" {
		doneValue = DefaultDoneValue
	}
	if t == nil {
		return Stats{}, nil
	}
	if err := t.Require(statusColumn); err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: t.Len()}
	for i := 0; i < t.Len(); i++ {
		v, _ := t.Value(i, statusColumn)
		if isDone(v, doneValue) {
			stats.Done++
		}
	}
	stats.Pending = stats.Total - stats.Done
	return stats, nil
}
