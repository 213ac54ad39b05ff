package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "SheetQueue/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	a := &recordingNotifier{channel: "a"}
	b := &recordingNotifier{channel: "b", err: stdErrors.New("offline")}
	d := NewFanout(a, nil, b)

	assert.Equal(t, []Channel{"a", "b"}, d.Channels())

	err := d.Notify(context.Background(), Event{Code: xerrors.CodeWriteError})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel b")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)

	var nilDispatcher *FanoutDispatcher
	assert.NoError(t, nilDispatcher.Notify(context.Background(), Event{}))
}

func TestEventFromError(t *testing.T) {
	cause := xerrors.Wrap(xerrors.CodeWriteError, stdErrors.New("disk full"), "写入失败",
		xerrors.WithMetadata("location", "/data/a.csv"))
	evt := EventFromError("mark_done", "/data/a.csv", fmt.Errorf("save: %w", cause))

	assert.Equal(t, xerrors.CodeWriteError, evt.Code)
	assert.Equal(t, xerrors.SeverityCritical, evt.Severity)
	assert.Equal(t, "mark_done", evt.Operation)
	assert.Equal(t, "/data/a.csv", evt.Metadata["location"])
	assert.False(t, evt.OccurredAt.IsZero())

	plain := EventFromError("next", "", stdErrors.New("boom"))
	assert.Equal(t, xerrors.CodeUnknown, plain.Code)
	assert.Nil(t, plain.Metadata)
}

func TestLogNotifierLevels(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	require.Equal(t, ChannelLog, n.Channel())

	require.NoError(t, n.Notify(context.Background(), Event{
		Code:     xerrors.CodeLockFailure,
		Message:  "flock failed",
		Severity: xerrors.SeverityCritical,
		Metadata: map[string]string{"location": "/data/a.csv"},
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "flock failed", line["msg"])
	assert.Equal(t, "LOCK_FAILURE", line["code"])
	assert.Equal(t, "/data/a.csv", line["meta.location"])
}
