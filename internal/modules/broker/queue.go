package broker

import "fmt"

// OrderQueue is a FIFO sequence of deferred orders. Insertion order is drain
// order; removal by index preserves the relative order of the rest.
type OrderQueue []QueuedOrder

// Enqueue appends an order to the back of the queue. The items mapping is
// copied so later mutation of the caller's map cannot alter the queued order.
func (q *OrderQueue) Enqueue(order QueuedOrder) {
	items := make(map[string]int64, len(order.Items))
	for ticker, qty := range order.Items {
		items[ticker] = qty
	}
	order.Items = items
	*q = append(*q, order)
}

// DequeueAll empties the queue and returns the orders in insertion order.
func (q *OrderQueue) DequeueAll() []QueuedOrder {
	orders := *q
	*q = nil
	return orders
}

// RemoveAt removes and returns the order at the given position.
func (q *OrderQueue) RemoveAt(index int) (QueuedOrder, error) {
	if index < 0 || index >= len(*q) {
		return QueuedOrder{}, fmt.Errorf("%w: %d (queue length %d)", ErrIndexOutOfRange, index, len(*q))
	}
	order := (*q)[index]
	*q = append((*q)[:index], (*q)[index+1:]...)
	return order, nil
}

// Peek returns a copy of the queue for display without draining it.
func (q OrderQueue) Peek() []QueuedOrder {
	if len(q) == 0 {
		return nil
	}
	out := make([]QueuedOrder, len(q))
	copy(out, q)
	return out
}

// Len returns the number of queued orders.
func (q OrderQueue) Len() int {
	return len(q)
}
