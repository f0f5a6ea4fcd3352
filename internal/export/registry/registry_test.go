package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/column-stream/exportd/internal/export/domain"
)

func newJob(id string, createdAt time.Time) *domain.ExportJob {
	return &domain.ExportJob{ID: id, Status: domain.JobStatusPending, CreatedAt: createdAt}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r := New()
	job := newJob("a", time.Now())
	r.Create(job)

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Same(t, job, got)
}

func TestRegistry_GetMissingReturnsNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestRegistry_TransitionFollowsStateMachine(t *testing.T) {
	r := New()
	job := newJob("a", time.Now())
	r.Create(job)

	require.NoError(t, r.Transition("a", domain.JobStatusInProgress))
	require.NoError(t, r.Transition("a", domain.JobStatusCompleted))
	assert.NotNil(t, job.CompletedAt)

	err := r.Transition("a", domain.JobStatusInProgress)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRequestInvalid)
}

func TestRegistry_Fail(t *testing.T) {
	r := New()
	job := newJob("a", time.Now())
	r.Create(job)
	require.NoError(t, r.Transition("a", domain.JobStatusInProgress))

	require.NoError(t, r.Fail("a", errors.New("disk full"), false))
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "disk full", job.Error)
	assert.False(t, job.ClientDisconnected)
}

func TestRegistry_SetRowsWritten(t *testing.T) {
	r := New()
	job := newJob("a", time.Now())
	r.Create(job)

	r.SetRowsWritten("a", 42)
	assert.Equal(t, int64(42), job.RowsWritten)

	r.SetRowsWritten("missing", 1) // no-op, must not panic
}

func TestRegistry_ListOrdersDescendingAndPaginates(t *testing.T) {
	r := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		r.Create(newJob(id, base.Add(time.Duration(i)*time.Minute)))
	}

	page1, cursor1 := r.List(nil, 2)
	require.Len(t, page1, 2)
	assert.Equal(t, "c", page1[0].ID)
	assert.Equal(t, "b", page1[1].ID)
	require.NotEmpty(t, cursor1)

	decoded, err := DecodeCursor(cursor1)
	require.NoError(t, err)

	page2, cursor2 := r.List(decoded, 2)
	require.Len(t, page2, 1)
	assert.Equal(t, "a", page2[0].ID)
	assert.Empty(t, cursor2)
}

func TestDecodeCursor_EmptyStringIsFirstPage(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeCursor_RejectsMalformedInput(t *testing.T) {
	_, err := DecodeCursor("not-base64!!!")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRequestInvalid)
}
