package sheetqueue

import (
	"context"
	"errors"
	"fmt"
)

// Handler processes one row. Returning an error stops Drain without marking
// the row done.
type Handler func(ctx context.Context, row Row) error

// Drain repeatedly fetches the next row, hands it to fn and marks it done,
// until no rows are left. It returns the number of rows completed.
func (c *Client) Drain(ctx context.Context, table string, fn Handler) (int, error) {
	if fn == nil {
		return 0, errors.New("sheetqueue: handler is nil")
	}
	var (
		done    int
		lastKey string
		hasLast bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		row, err := c.NextRow(ctx, table)
		if errors.Is(err, ErrNoRows) {
			return done, nil
		}
		if err != nil {
			return done, err
		}
		id, ok := row[c.idColumn]
		if !ok || id == nil {
			return done, fmt.Errorf("sheetqueue: row has no %q value", c.idColumn)
		}
		// The server handed back the row we just completed; stop rather than
		// handle it again.
		key := fmt.Sprint(id)
		if hasLast && key == lastKey {
			return done, fmt.Errorf("sheetqueue: row %s is still pending after mark-done", key)
		}
		if err := fn(ctx, row); err != nil {
			return done, fmt.Errorf("handle row %s: %w", key, err)
		}
		if _, err := c.MarkDone(ctx, table, id); err != nil {
			return done, fmt.Errorf("mark row %s done: %w", key, err)
		}
		done++
		lastKey, hasLast = key, true
	}
}
