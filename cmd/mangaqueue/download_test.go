package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kerbaras/mangaqueue/pkg/services"
)

type mockQueue struct {
	cancelled int
	waitFunc  func(ctx context.Context) error
}

func (m *mockQueue) Cancel() { m.cancelled++ }

func (m *mockQueue) Wait(ctx context.Context) error { return m.waitFunc(ctx) }

func TestStopQueue(t *testing.T) {
	t.Run("stopped in time", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		q := &mockQueue{waitFunc: func(context.Context) error { return nil }}

		stopQueue(q, zap.New(core), time.Second)

		assert.Equal(t, 1, q.cancelled)
		assert.Zero(t, logs.Len())
	})

	t.Run("still running", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		q := &mockQueue{waitFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}

		stopQueue(q, zap.New(core), 10*time.Millisecond)

		assert.Equal(t, 1, q.cancelled)
		entries := logs.FilterMessage("downloads still running at exit").All()
		require.Len(t, entries, 1)
		assert.Equal(t, context.DeadlineExceeded.Error(), entries[0].ContextMap()["error"])
	})
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name   string
		status services.Status
		want   string
	}{
		{"done", services.Status{Done: true}, "All downloads finished"},
		{"cancelling", services.Status{Title: "A", Cancelling: true, Indeterminate: true}, "Cancelling A..."},
		{"indeterminate", services.Status{Title: "A", Text: "saving manga", Indeterminate: true}, "  A: saving manga"},
		{"progress", services.Status{Title: "A", Text: "downloading", Progress: 140, Max: 300}, "  A: downloading 46%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatStatus(tt.status))
		})
	}
}
