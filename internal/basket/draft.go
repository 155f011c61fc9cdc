package basket

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stationpos/backend/internal/domain"
)

// Draft is the state of a terminal between sales: the basket, the sale
// date and whether a submission is in flight.
type Draft struct {
	mu         sync.Mutex
	basket     *Basket
	date       time.Time
	submitting bool
	now        func() time.Time
}

func NewDraft(now func() time.Time) *Draft {
	if now == nil {
		now = time.Now
	}
	return &Draft{basket: New(), date: Today(now()), now: now}
}

func Today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (d *Draft) AddLine(article *domain.Article, qty int, price decimal.Decimal, location domain.SalesLocation) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitting {
		return false
	}
	return d.basket.AddLine(article, qty, price, location)
}

func (d *Draft) RemoveLine(index int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitting {
		return false
	}
	return d.basket.RemoveLine(index)
}

func (d *Draft) SetDate(date time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !date.IsZero() {
		d.date = Today(date)
	}
}

func (d *Draft) Date() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.date
}

func (d *Draft) Total() decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.basket.Total()
}

func (d *Draft) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.basket.Snapshot()
}

func (d *Draft) Submitting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitting
}

// BeginSubmit marks the draft as in flight and returns what to commit. It
// reports false if a submission is already running.
func (d *Draft) BeginSubmit() (Snapshot, time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitting {
		return Snapshot{}, time.Time{}, false
	}
	d.submitting = true
	return d.basket.Snapshot(), d.date, true
}

// Complete clears the basket and resets the date once the sale is stored.
func (d *Draft) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.basket.Reset()
	d.date = Today(d.now())
	d.submitting = false
}

// Abort ends a failed submission and keeps the basket for a retry.
func (d *Draft) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitting = false
}
