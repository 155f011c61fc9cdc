package basket

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stationpos/backend/internal/domain"
)

var (
	oilFilter = domain.Article{ID: "art-oil-filter", Name: "Oil Filter", Category: "Filtres", Type: domain.ArticleTypeGoods, Price: decimal.NewFromInt(50), CurrentStock: 10}
	carWash   = domain.Article{ID: "art-car-wash", Name: "Car Wash", Category: "Lavage", Type: domain.ArticleTypeService, Price: decimal.NewFromInt(30)}
	xpro      = domain.Article{ID: "art-xpro", Name: "Xpro 5L", Category: domain.CategoryLubricants, Type: domain.ArticleTypeGoods, Price: decimal.NewFromInt(250)}
)

func sumLines(b *Basket) decimal.Decimal {
	total := decimal.Zero
	for _, line := range b.Lines() {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

func TestAddLineMergesIdenticalLines(t *testing.T) {
	b := New()
	price := decimal.NewFromInt(50)
	for _, qty := range []int{1, 2, 3} {
		if !b.AddLine(&oilFilter, qty, price, "") {
			t.Fatalf("expected line to be accepted")
		}
	}

	lines := b.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(lines))
	}
	if lines[0].Quantity != 6 {
		t.Fatalf("expected merged quantity 6, got %d", lines[0].Quantity)
	}
}

func TestAddLineRejectsInvalidInput(t *testing.T) {
	b := New()
	b.AddLine(&oilFilter, 1, oilFilter.Price, "")

	for _, qty := range []int{0, -1, -10} {
		if b.AddLine(&oilFilter, qty, oilFilter.Price, "") {
			t.Fatalf("expected qty %d to be rejected", qty)
		}
	}
	if b.AddLine(nil, 2, decimal.NewFromInt(10), "") {
		t.Fatalf("expected nil article to be rejected")
	}
	if b.AddLine(&carWash, 1, decimal.NewFromInt(-5), "") {
		t.Fatalf("expected negative price to be rejected")
	}
	if b.AddLine(&xpro, 1, xpro.Price, domain.SalesLocation("garage")) {
		t.Fatalf("expected unknown location to be rejected")
	}
	if b.Len() != 1 {
		t.Fatalf("expected basket size unchanged at 1, got %d", b.Len())
	}
}

func TestAddLineForcesCatalogPriceForGoods(t *testing.T) {
	b := New()
	b.AddLine(&oilFilter, 1, decimal.NewFromInt(1), "")

	if got := b.Lines()[0].UnitPrice; !got.Equal(oilFilter.Price) {
		t.Fatalf("expected catalog price %s, got %s", oilFilter.Price, got)
	}
}

func TestAddLineKeepsOperatorPriceForServices(t *testing.T) {
	b := New()
	b.AddLine(&carWash, 1, decimal.NewFromInt(35), "")
	b.AddLine(&carWash, 1, decimal.NewFromInt(30), "")

	lines := b.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected separate lines for different prices, got %d", len(lines))
	}
	if !lines[0].UnitPrice.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("expected operator price 35, got %s", lines[0].UnitPrice)
	}
}

func TestAddLineLocationRules(t *testing.T) {
	b := New()
	b.AddLine(&xpro, 1, xpro.Price, "")
	b.AddLine(&xpro, 1, xpro.Price, domain.LocationBosch)
	b.AddLine(&oilFilter, 1, oilFilter.Price, domain.LocationBosch)

	lines := b.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected lines split by location, got %d", len(lines))
	}
	if lines[0].Location != domain.LocationPiste {
		t.Fatalf("expected lubricant default location piste, got %q", lines[0].Location)
	}
	if lines[1].Location != domain.LocationBosch {
		t.Fatalf("expected bosch location, got %q", lines[1].Location)
	}
	if lines[2].Location != "" {
		t.Fatalf("expected no location on non-lubricant line, got %q", lines[2].Location)
	}
}

func TestTotalTracksLines(t *testing.T) {
	b := New()
	if !b.Total().IsZero() {
		t.Fatalf("expected zero total for empty basket")
	}

	b.AddLine(&oilFilter, 2, oilFilter.Price, "")
	b.AddLine(&carWash, 1, decimal.RequireFromString("30.50"), "")
	b.AddLine(&xpro, 3, xpro.Price, domain.LocationBosch)
	if !b.Total().Equal(sumLines(b)) {
		t.Fatalf("total %s differs from line sum %s", b.Total(), sumLines(b))
	}
	if !b.Total().Equal(decimal.RequireFromString("880.50")) {
		t.Fatalf("expected 880.50, got %s", b.Total())
	}

	if !b.RemoveLine(0) {
		t.Fatalf("expected remove to succeed")
	}
	if !b.Total().Equal(sumLines(b)) || !b.Total().Equal(decimal.RequireFromString("780.50")) {
		t.Fatalf("unexpected total after remove: %s", b.Total())
	}
}

func TestRemoveLineOutOfRange(t *testing.T) {
	b := New()
	b.AddLine(&oilFilter, 1, oilFilter.Price, "")

	if b.RemoveLine(-1) || b.RemoveLine(1) {
		t.Fatalf("expected out-of-range removal to be a no-op")
	}
	if b.Len() != 1 {
		t.Fatalf("expected basket untouched")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	b := New()
	b.AddLine(&oilFilter, 1, oilFilter.Price, "")
	snap := b.Snapshot()

	b.AddLine(&oilFilter, 4, oilFilter.Price, "")
	b.Reset()

	if len(snap.Lines) != 1 || snap.Lines[0].Quantity != 1 {
		t.Fatalf("snapshot changed with basket: %+v", snap.Lines)
	}
	if !snap.Total.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected snapshot total 50, got %s", snap.Total)
	}
	if b.Len() != 0 {
		t.Fatalf("expected reset basket to be empty")
	}
}

func TestDraftSubmitLifecycle(t *testing.T) {
	clock := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)
	d := NewDraft(func() time.Time { return clock })

	if !d.Date().Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected draft date to default to today, got %s", d.Date())
	}
	d.SetDate(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	d.AddLine(&oilFilter, 2, oilFilter.Price, "")

	snap, date, ok := d.BeginSubmit()
	if !ok {
		t.Fatalf("expected first submit to start")
	}
	if len(snap.Lines) != 1 || date.Day() != 10 {
		t.Fatalf("unexpected submit payload: %+v %s", snap, date)
	}
	if _, _, again := d.BeginSubmit(); again {
		t.Fatalf("expected re-submit to be refused while in flight")
	}
	if d.AddLine(&carWash, 1, carWash.Price, "") {
		t.Fatalf("expected basket locked while submitting")
	}

	d.Abort()
	if d.Submitting() || d.Snapshot().Empty() {
		t.Fatalf("expected abort to keep the basket and clear the flag")
	}

	if _, _, ok := d.BeginSubmit(); !ok {
		t.Fatalf("expected submit after abort")
	}
	clock = clock.Add(24 * time.Hour)
	d.Complete()
	if !d.Snapshot().Empty() {
		t.Fatalf("expected complete to clear the basket")
	}
	if d.Date().Day() != 15 {
		t.Fatalf("expected date reset to today, got %s", d.Date())
	}
}
