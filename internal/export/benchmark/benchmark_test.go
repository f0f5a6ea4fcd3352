package benchmark

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/column-stream/exportd/internal/export/domain"
)

type failingDB struct{}

func (failingDB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return nil, errors.New("connect refused")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHarness_Run_FailsWhenCountFails(t *testing.T) {
	h := New(failingDB{}, func(ctx context.Context) (int64, error) {
		return 0, errors.New("count failed")
	}, 0, discardLogger())

	_, err := h.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBenchmarkFormatFailed)
}

func TestHarness_Run_FailsWhenEveryFormatFails(t *testing.T) {
	h := New(failingDB{}, func(ctx context.Context) (int64, error) {
		return 100, nil
	}, 0, discardLogger())

	_, err := h.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBenchmarkFormatFailed)
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 1.23, roundTo(1.2345, 2))
	assert.Equal(t, 0.0, roundTo(0.001, 2))
	assert.Equal(t, 2.0, roundTo(1.999, 2))
}
