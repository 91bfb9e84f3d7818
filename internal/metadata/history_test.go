package metadata

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(i int) UpdateRecord {
	return UpdateRecord{
		Timestamp: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
		SourceID:  fmt.Sprintf("src-%d", i),
		Type:      ChangeUpdated,
	}
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		capacity int
		pushes   int
	}{
		{name: "under_capacity", capacity: 5, pushes: 3},
		{name: "exactly_full", capacity: 5, pushes: 5},
		{name: "overflow", capacity: 5, pushes: 12},
		{name: "default_capacity_overflow", capacity: DefaultHistoryCapacity, pushes: DefaultHistoryCapacity + 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHistory(tt.capacity)
			for i := range tt.pushes {
				h.Push(record(i))
			}

			want := min(tt.pushes, tt.capacity)
			require.Equal(t, want, h.Len())

			records := h.Records()
			require.Len(t, records, want)
			for i, rec := range records {
				assert.Equal(t, fmt.Sprintf("src-%d", tt.pushes-1-i), rec.SourceID)
			}
		})
	}
}

func TestHistoryReset(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	h.Push(record(100))

	// newest first
	h.Reset([]UpdateRecord{record(9), record(8), record(7), record(6), record(5)})
	require.Equal(t, 3, h.Len())
	assert.Equal(t, []UpdateRecord{record(9), record(8), record(7)}, h.Records())

	h.Push(record(10))
	assert.Equal(t, []UpdateRecord{record(10), record(9), record(8)}, h.Records())

	h.Reset(nil)
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Records())
}

func TestHistoryAtOutOfRange(t *testing.T) {
	t.Parallel()

	h := NewHistory(2)
	h.Push(record(1))
	assert.Panics(t, func() { h.At(1) })
	assert.Panics(t, func() { h.At(-1) })
}

func TestNewHistoryMinimumCapacity(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	assert.Equal(t, 1, h.Cap())
	h.Push(record(1))
	h.Push(record(2))
	assert.Equal(t, []UpdateRecord{record(2)}, h.Records())
}
