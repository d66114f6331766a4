package client

import "sync"

// DefaultMaxRetries bounds how often a send is retried after explicit
// failure acknowledgments before it is surfaced as permanently failed.
const DefaultMaxRetries = 3

// Sender transmits a message over the live channel.
type Sender interface {
	Send(to int, text, tmpID string) error
}

type queueItem struct {
	to      int
	text    string
	tmpID   string
	retries int
}

// Queue decouples message submission from channel connectivity. While
// disconnected it buffers sends in order; on (re)connect it drains
// strictly FIFO, preserving the user's intended send order. Explicit
// failure acks re-enqueue the entry up to the retry ceiling; beyond it
// the entry is dropped and reported as a permanent failure. A message
// is never lost short of exhausting its retries.
type Queue struct {
	mu         sync.Mutex
	sender     Sender
	connected  bool
	items      []queueItem
	inflight   map[string]queueItem
	maxRetries int
	onFailure  func(tmpID string)
}

// NewQueue constructs a queue. onFailure is invoked, outside the queue
// lock, for every send that exhausts its retries.
func NewQueue(sender Sender, maxRetries int, onFailure func(tmpID string)) *Queue {
	return &Queue{
		sender:     sender,
		inflight:   make(map[string]queueItem),
		maxRetries: maxRetries,
		onFailure:  onFailure,
	}
}

// EnqueueSend transmits immediately when connected, otherwise buffers.
func (q *Queue) EnqueueSend(to int, text, tmpID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := queueItem{to: to, text: text, tmpID: tmpID}
	if !q.connected {
		q.items = append(q.items, item)
		return
	}
	q.transmitLocked(item)
}

// SetConnected flips connectivity. Going up drains the buffer in FIFO
// order; a transport error mid-drain flips back down and keeps the
// remainder queued.
func (q *Queue) SetConnected(up bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.connected = up
	if !up {
		return
	}
	for len(q.items) > 0 && q.connected {
		item := q.items[0]
		q.items = q.items[1:]
		q.transmitLocked(item)
	}
}

// Ack clears the retry state for a confirmed send.
func (q *Queue) Ack(tmpID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, tmpID)
}

// Fail handles an explicit failure acknowledgment from the server. The
// entry is retried with an incremented counter, or dropped and surfaced
// once the ceiling is exceeded. Other queued sends are unaffected.
func (q *Queue) Fail(tmpID string) {
	q.mu.Lock()
	item, ok := q.inflight[tmpID]
	if !ok {
		q.mu.Unlock()
		return
	}
	delete(q.inflight, tmpID)

	item.retries++
	if item.retries > q.maxRetries {
		q.mu.Unlock()
		if q.onFailure != nil {
			q.onFailure(tmpID)
		}
		return
	}

	if q.connected {
		q.transmitLocked(item)
	} else {
		q.items = append(q.items, item)
	}
	q.mu.Unlock()
}

// Pending reports how many sends are buffered awaiting connectivity.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// transmitLocked sends one item, keeping it inflight for a possible
// failure ack. A transport error means the connection dropped: the item
// goes back to the front of the buffer untouched, to be resent on
// reconnect. Callers hold q.mu.
func (q *Queue) transmitLocked(item queueItem) {
	q.inflight[item.tmpID] = item
	if err := q.sender.Send(item.to, item.text, item.tmpID); err != nil {
		delete(q.inflight, item.tmpID)
		q.connected = false
		q.items = append([]queueItem{item}, q.items...)
	}
}
