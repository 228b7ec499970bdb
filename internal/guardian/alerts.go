package guardian

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceAlert is a move beyond the alert threshold between two guardian ticks.
type PriceAlert struct {
	Symbol  string          `json:"symbol"`
	MovePct decimal.Decimal `json:"move_pct"`
	Price   decimal.Decimal `json:"price"`
	At      time.Time       `json:"at"`
}

const defaultAlertCapacity = 256

// AlertQueue has many producers and a single consumer that drains it.
type AlertQueue struct {
	// Capacity bounds the queue; the oldest alerts are dropped first.
	Capacity int

	mu      sync.Mutex
	items   []PriceAlert
	dropped int
}

func (q *AlertQueue) Push(a PriceAlert) {
	if q == nil {
		return
	}
	limit := q.Capacity
	if limit <= 0 {
		limit = defaultAlertCapacity
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, a)
	if over := len(q.items) - limit; over > 0 {
		q.items = append(q.items[:0:0], q.items[over:]...)
		q.dropped += over
	}
}

// Drain returns every queued alert and empties the queue.
func (q *AlertQueue) Drain() []PriceAlert {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *AlertQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *AlertQueue) Dropped() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
