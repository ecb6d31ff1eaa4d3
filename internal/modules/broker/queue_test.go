package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	var q OrderQueue
	q.Enqueue(QueuedOrder{ID: "a", Side: SideBuy, Items: map[string]int64{"AAPL": 1}})
	q.Enqueue(QueuedOrder{ID: "b", Side: SideSell, Items: map[string]int64{"MSFT": 2}})
	q.Enqueue(QueuedOrder{ID: "c", Side: SideBuy, Items: map[string]int64{"GME": 3}})

	orders := q.DequeueAll()
	require.Len(t, orders, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{orders[0].ID, orders[1].ID, orders[2].ID})
	assert.Equal(t, 0, q.Len())
}

func TestQueue_EnqueueCopiesItems(t *testing.T) {
	var q OrderQueue
	items := map[string]int64{"AAPL": 5}
	q.Enqueue(QueuedOrder{ID: "a", Side: SideBuy, Items: items})

	items["AAPL"] = 99
	assert.Equal(t, int64(5), q[0].Items["AAPL"])
}

func TestQueue_RemoveAtPreservesOrder(t *testing.T) {
	var q OrderQueue
	for _, id := range []string{"a", "b", "c", "d"} {
		q.Enqueue(QueuedOrder{ID: id, Side: SideBuy, Items: map[string]int64{"X": 1}})
	}

	removed, err := q.RemoveAt(1)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.ID)

	require.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"a", "c", "d"}, []string{q[0].ID, q[1].ID, q[2].ID})
}

func TestQueue_RemoveAtBounds(t *testing.T) {
	var q OrderQueue
	q.Enqueue(QueuedOrder{ID: "a", Side: SideBuy, Items: map[string]int64{"X": 1}})

	_, err := q.RemoveAt(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = q.RemoveAt(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_PeekDoesNotDrain(t *testing.T) {
	var q OrderQueue
	q.Enqueue(QueuedOrder{ID: "a", Side: SideBuy, Items: map[string]int64{"X": 1}})

	view := q.Peek()
	require.Len(t, view, 1)
	view[0].ID = "mutated"
	assert.Equal(t, "a", q[0].ID)
	assert.Equal(t, 1, q.Len())
}
