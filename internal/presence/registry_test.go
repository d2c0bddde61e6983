package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotListsUserOnce(t *testing.T) {
	reg := NewRegistry()

	reg.MarkOnline(7)
	reg.MarkOnline(7)

	require.Equal(t, []int{7}, reg.Snapshot())
	assert.True(t, reg.IsOnline(7))
}

func TestMarkOfflineUnknownUserIsNoop(t *testing.T) {
	reg := NewRegistry()

	reg.MarkOffline(42)

	assert.Empty(t, reg.Snapshot())
	assert.False(t, reg.IsOnline(42))
}

func TestSecondConnectionKeepsUserOnline(t *testing.T) {
	reg := NewRegistry()

	reg.MarkOnline(3)
	reg.MarkOnline(3)
	reg.MarkOffline(3)

	assert.True(t, reg.IsOnline(3), "one device closing must not take the user offline")

	reg.MarkOffline(3)
	assert.False(t, reg.IsOnline(3))
	assert.Empty(t, reg.Snapshot())
}

func TestSnapshotSorted(t *testing.T) {
	reg := NewRegistry()

	reg.MarkOnline(9)
	reg.MarkOnline(1)
	reg.MarkOnline(5)

	require.Equal(t, []int{1, 5, 9}, reg.Snapshot())
}
