package utils

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIDSortable(t *testing.T) {
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, NewID())
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, sort.StringsAreSorted(ids), "ids: %v", ids)

	seen := map[string]struct{}{}
	for _, id := range ids {
		require.Len(t, id, 26)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, len(ids))
}

func TestGlenErrorDetails(t *testing.T) {
	sentinel := NewGlenError("boom")
	require.EqualError(t, sentinel, "boom")

	detailed := sentinel.WithDetails("while folding")
	require.EqualError(t, detailed, "boom: while folding")
	// The detailed copy still matches the sentinel.
	require.ErrorIs(t, detailed, sentinel)
	// The sentinel itself is untouched.
	require.Empty(t, sentinel.Details)
	require.False(t, errors.Is(sentinel, detailed))
}
