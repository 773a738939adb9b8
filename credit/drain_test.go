package credit_test

import (
	"testing"
	"time"

	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func lot(daysAfter int, remaining string) *credit.Lot {
	h := types.MustParseHours(remaining)
	return &credit.Lot{
		ID:             id.NewLotID(),
		PurchaseDate:   day0.AddDate(0, 0, daysAfter),
		HoursPurchased: h,
		RemainingHours: h,
	}
}

func hours(s string) types.Hours { return types.MustParseHours(s) }

func TestPlanDrainsOldestFirst(t *testing.T) {
	older := lot(0, "2")
	newer := lot(10, "5")

	// Passed newest first on purpose.
	d := credit.Plan([]*credit.Lot{newer, older}, hours("3"))

	if !d.Satisfied() {
		t.Fatalf("expected satisfied, shortfall %s", d.Shortfall)
	}
	if len(d.Deductions) != 2 {
		t.Fatalf("expected 2 deductions, got %d", len(d.Deductions))
	}
	if d.Deductions[0].LotID != older.ID || !d.Deductions[0].After.IsZero() {
		t.Errorf("first deduction should zero the older lot, got %+v", d.Deductions[0])
	}
	if d.Deductions[1].LotID != newer.ID || !d.Deductions[1].After.Equal(hours("4")) {
		t.Errorf("second deduction should leave 4h on the newer lot, got %+v", d.Deductions[1])
	}
}

func TestPlanDoesNotModifyLots(t *testing.T) {
	l := lot(0, "2")
	credit.Plan([]*credit.Lot{l}, hours("1"))
	if !l.RemainingHours.Equal(hours("2")) {
		t.Errorf("Plan mutated the lot: remaining %s", l.RemainingHours)
	}
}

func TestPlanStopsAtExactExhaustion(t *testing.T) {
	first := lot(0, "1.5")
	second := lot(1, "2.5")
	third := lot(2, "9")

	d := credit.Plan([]*credit.Lot{first, second, third}, hours("4"))

	if !d.Satisfied() {
		t.Fatalf("expected satisfied, shortfall %s", d.Shortfall)
	}
	if len(d.Deductions) != 2 {
		t.Fatalf("expected the walk to stop after the second lot, got %d deductions", len(d.Deductions))
	}
	if !d.Deductions[1].After.IsZero() {
		t.Errorf("second lot should be exactly zeroed, got %s", d.Deductions[1].After)
	}
}

func TestPlanExactTotalDrainsEverything(t *testing.T) {
	lots := []*credit.Lot{lot(0, "1.25"), lot(1, "0.75"), lot(2, "3")}

	d := credit.Plan(lots, hours("5"))

	if !d.Satisfied() {
		t.Fatalf("expected satisfied, shortfall %s", d.Shortfall)
	}
	for _, ded := range d.Deductions {
		if !ded.After.IsZero() {
			t.Errorf("lot %s left with %s", ded.LotID, ded.After)
		}
	}
	if !d.Drawn().Equal(hours("5")) {
		t.Errorf("drawn %s, want 5", d.Drawn())
	}
}

func TestPlanInsufficientReportsShortfall(t *testing.T) {
	d := credit.Plan([]*credit.Lot{lot(0, "1"), lot(1, "0.5")}, hours("2"))

	if d.Satisfied() {
		t.Fatal("expected unsatisfied plan")
	}
	if !d.Shortfall.Equal(hours("0.5")) {
		t.Errorf("shortfall %s, want 0.5", d.Shortfall)
	}
}

func TestPlanSkipsEmptyLots(t *testing.T) {
	empty := lot(0, "0")
	full := lot(1, "3")

	d := credit.Plan([]*credit.Lot{empty, full}, hours("1"))

	if len(d.Deductions) != 1 || d.Deductions[0].LotID != full.ID {
		t.Fatalf("expected a single deduction from the non-empty lot, got %+v", d.Deductions)
	}
}

func TestPlanNoLots(t *testing.T) {
	d := credit.Plan(nil, hours("1"))
	if d.Satisfied() || len(d.Deductions) != 0 {
		t.Fatalf("expected unsatisfied empty plan, got %+v", d)
	}
}

func TestSortFIFOTieBreaksOnID(t *testing.T) {
	a := lot(0, "1")
	time.Sleep(2 * time.Millisecond)
	b := lot(0, "1")

	lots := []*credit.Lot{b, a}
	credit.SortFIFO(lots)

	if lots[0].ID != a.ID {
		t.Errorf("expected the lower ID first on equal purchase dates")
	}
}

func TestSummarize(t *testing.T) {
	a := lot(0, "4")
	a.RemainingHours = hours("0")
	b := lot(3, "2")
	b.RemainingHours = hours("1.5")

	bal := credit.Summarize(id.NewCustomerID(), []*credit.Lot{a, b})

	if bal.Lots != 2 || bal.AvailableLots != 1 {
		t.Errorf("lots=%d available=%d", bal.Lots, bal.AvailableLots)
	}
	if !bal.Purchased.Equal(hours("6")) || !bal.Remaining.Equal(hours("1.5")) || !bal.Consumed.Equal(hours("4.5")) {
		t.Errorf("unexpected totals %+v", bal)
	}
	if bal.OldestAvailable == nil || !bal.OldestAvailable.Equal(b.PurchaseDate) {
		t.Errorf("oldest available should be lot b, got %v", bal.OldestAvailable)
	}
	if !bal.Covers(hours("1.5")) || bal.Covers(hours("1.75")) {
		t.Error("Covers disagrees with remaining balance")
	}
}
