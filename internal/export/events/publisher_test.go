package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/column-stream/exportd/internal/export/domain"
)

type fakePublisher struct {
	bodies [][]byte
	err    error
}

func (f *fakePublisher) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	f.bodies = append(f.bodies, body)
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_PublishMarshalsEvent(t *testing.T) {
	fp := &fakePublisher{}
	p := New(fp, discardLogger())

	p.Publish(context.Background(), Event{JobID: "a", Status: "completed", RowsWritten: 10})

	require.Len(t, fp.bodies, 1)
	var decoded Event
	require.NoError(t, json.Unmarshal(fp.bodies[0], &decoded))
	assert.Equal(t, "a", decoded.JobID)
	assert.Equal(t, "completed", decoded.Status)
	assert.Equal(t, int64(10), decoded.RowsWritten)
}

func TestPublisher_PublishSwallowsClientError(t *testing.T) {
	fp := &fakePublisher{err: errors.New("broker unreachable")}
	p := New(fp, discardLogger())

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), Event{JobID: "a", Status: "failed"})
	})
}

func TestPublisher_NilClientIsNoop(t *testing.T) {
	p := New(nil, discardLogger())
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), Event{JobID: "a", Status: "pending"})
	})
}

func TestPublisher_PublishStatusBuildsEventFromJob(t *testing.T) {
	fp := &fakePublisher{}
	p := New(fp, discardLogger())

	job := &domain.ExportJob{ID: "j1", Status: domain.JobStatusCompleted, RowsWritten: 5}
	p.PublishStatus(context.Background(), job)

	require.Len(t, fp.bodies, 1)
	var decoded Event
	require.NoError(t, json.Unmarshal(fp.bodies[0], &decoded))
	assert.Equal(t, "j1", decoded.JobID)
	assert.Equal(t, "completed", decoded.Status)
}
