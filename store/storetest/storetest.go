// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/types"
)

// Factory returns a fresh, migrated store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Customers", func(t *testing.T) { testCustomers(t, newStore(t)) })
	t.Run("Lots", func(t *testing.T) { testLots(t, newStore(t)) })
	t.Run("Appointments", func(t *testing.T) { testAppointments(t, newStore(t)) })
	t.Run("TxUnknownCustomer", func(t *testing.T) { testTxUnknownCustomer(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("TxForeignLot", func(t *testing.T) { testTxForeignLot(t, newStore(t)) })
	t.Run("Debit", func(t *testing.T) { testDebit(t, newStore(t)) })
	t.Run("ConcurrentDebits", func(t *testing.T) { testConcurrentDebits(t, newStore(t)) })
	t.Run("CompleteAppointment", func(t *testing.T) { testCompleteAppointment(t, newStore(t)) })
}

var base = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func h(s string) types.Hours { return types.MustParseHours(s) }

func seedCustomer(t *testing.T, s store.Store, name string) *customer.Customer {
	t.Helper()

	c := &customer.Customer{
		Entity: types.NewEntityAt(base),
		ID:     id.NewCustomerID(),
		Name:   name,
		Phone:  "+5511999990000",
	}
	if err := s.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("CreateCustomer(%s): %v", name, err)
	}
	return c
}

func seedLot(t *testing.T, s store.Store, customerID id.CustomerID, daysAgo int, hours string) *credit.Lot {
	t.Helper()

	l := &credit.Lot{
		Entity:         types.NewEntityAt(base),
		ID:             id.NewLotID(),
		CustomerID:     customerID,
		PurchaseDate:   base.AddDate(0, 0, -daysAgo),
		HoursPurchased: h(hours),
		RemainingHours: h(hours),
		PricePaid:      types.BRL(10000),
	}
	if err := s.CreateLot(context.Background(), l); err != nil {
		t.Fatalf("CreateLot: %v", err)
	}
	return l
}

func remaining(t *testing.T, s store.Store, lotID id.LotID) types.Hours {
	t.Helper()

	l, err := s.GetLot(context.Background(), lotID)
	if err != nil {
		t.Fatalf("GetLot(%s): %v", lotID, err)
	}
	return l.RemainingHours
}

func wantHours(t *testing.T, what string, got types.Hours, want string) {
	t.Helper()
	if !got.Equal(h(want)) {
		t.Errorf("%s = %s, want %s", what, got, want)
	}
}

func testCustomers(t *testing.T, s store.Store) {
	ctx := context.Background()

	bob := seedCustomer(t, s, "Bob")
	alice := seedCustomer(t, s, "Alice")

	got, err := s.GetCustomer(ctx, bob.ID)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if got.Name != "Bob" || got.Phone != bob.Phone {
		t.Errorf("GetCustomer = %+v", got)
	}

	if err := s.CreateCustomer(ctx, bob); !errors.Is(err, hourbank.ErrAlreadyExists) {
		t.Errorf("duplicate CreateCustomer err = %v, want ErrAlreadyExists", err)
	}

	if _, err := s.GetCustomer(ctx, id.NewCustomerID()); !errors.Is(err, hourbank.ErrCustomerNotFound) {
		t.Errorf("GetCustomer(unknown) err = %v, want ErrCustomerNotFound", err)
	}

	list, err := s.ListCustomers(ctx, customer.ListOpts{})
	if err != nil {
		t.Fatalf("ListCustomers: %v", err)
	}
	if len(list) != 2 || list[0].ID != alice.ID || list[1].ID != bob.ID {
		t.Errorf("ListCustomers not ordered by name: %v", list)
	}

	page, err := s.ListCustomers(ctx, customer.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListCustomers page: %v", err)
	}
	if len(page) != 1 || page[0].ID != bob.ID {
		t.Errorf("ListCustomers page = %v, want [Bob]", page)
	}

	bob.Email = "bob@example.com"
	bob.Touch(base.Add(time.Hour))
	if err := s.UpdateCustomer(ctx, bob); err != nil {
		t.Fatalf("UpdateCustomer: %v", err)
	}
	got, _ = s.GetCustomer(ctx, bob.ID)
	if got.Email != "bob@example.com" {
		t.Errorf("Email after update = %q", got.Email)
	}

	ghost := &customer.Customer{ID: id.NewCustomerID(), Name: "Ghost"}
	if err := s.UpdateCustomer(ctx, ghost); !errors.Is(err, hourbank.ErrCustomerNotFound) {
		t.Errorf("UpdateCustomer(unknown) err = %v, want ErrCustomerNotFound", err)
	}
}

func testLots(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seedCustomer(t, s, "Ana")

	newer := seedLot(t, s, c.ID, 1, "5")
	older := seedLot(t, s, c.ID, 10, "2.5")
	empty := seedLot(t, s, c.ID, 20, "1")

	err := s.WithCustomerTx(ctx, c.ID, func(ctx context.Context, tx store.Tx) error {
		return tx.SetRemaining(ctx, empty.ID, types.ZeroHours)
	})
	if err != nil {
		t.Fatalf("emptying lot: %v", err)
	}

	got, err := s.GetLot(ctx, older.ID)
	if err != nil {
		t.Fatalf("GetLot: %v", err)
	}
	wantHours(t, "HoursPurchased", got.HoursPurchased, "2.5")
	if !got.PurchaseDate.Equal(older.PurchaseDate) {
		t.Errorf("PurchaseDate = %v, want %v", got.PurchaseDate, older.PurchaseDate)
	}
	if !got.PricePaid.Equal(types.BRL(10000)) {
		t.Errorf("PricePaid = %v", got.PricePaid)
	}

	if _, err := s.GetLot(ctx, id.NewLotID()); !errors.Is(err, hourbank.ErrLotNotFound) {
		t.Errorf("GetLot(unknown) err = %v, want ErrLotNotFound", err)
	}

	all, err := s.ListLots(ctx, c.ID, credit.ListOpts{})
	if err != nil {
		t.Fatalf("ListLots: %v", err)
	}
	if len(all) != 3 || all[0].ID != empty.ID || all[1].ID != older.ID || all[2].ID != newer.ID {
		t.Errorf("ListLots not FIFO: %v", all)
	}

	avail, err := s.ListLots(ctx, c.ID, credit.ListOpts{OnlyAvailable: true})
	if err != nil {
		t.Fatalf("ListLots available: %v", err)
	}
	if len(avail) != 2 || avail[0].ID != older.ID {
		t.Errorf("ListLots(OnlyAvailable) = %v", avail)
	}

	stranger := &credit.Lot{ID: id.NewLotID(), CustomerID: id.NewCustomerID(), PurchaseDate: base, HoursPurchased: h("1"), RemainingHours: h("1")}
	if err := s.CreateLot(ctx, stranger); !errors.Is(err, hourbank.ErrCustomerNotFound) {
		t.Errorf("CreateLot(unknown customer) err = %v, want ErrCustomerNotFound", err)
	}
}

func testAppointments(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seedCustomer(t, s, "Caio")

	mk := func(offset time.Duration, status appointment.Status) *appointment.Appointment {
		a := &appointment.Appointment{
			Entity:      types.NewEntityAt(base),
			ID:          id.NewAppointmentID(),
			CustomerID:  c.ID,
			ScheduledAt: base.Add(offset),
			Duration:    h("1"),
			Status:      status,
		}
		if err := s.CreateAppointment(ctx, a); err != nil {
			t.Fatalf("CreateAppointment: %v", err)
		}
		return a
	}

	past := mk(-48*time.Hour, appointment.StatusCompleted)
	mid := mk(-24*time.Hour, appointment.StatusCanceled)
	future := mk(24*time.Hour, appointment.StatusScheduled)

	list, err := s.ListAppointments(ctx, c.ID, appointment.ListOpts{})
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if len(list) != 3 || list[0].ID != future.ID || list[2].ID != past.ID {
		t.Errorf("ListAppointments not newest first: %v", list)
	}

	tests := []struct {
		name string
		opts appointment.ListOpts
		want []id.AppointmentID
	}{
		{"status", appointment.ListOpts{Status: appointment.StatusScheduled}, []id.AppointmentID{future.ID}},
		{"window", appointment.ListOpts{Start: base.Add(-30 * time.Hour), End: base}, []id.AppointmentID{mid.ID}},
		{"open end", appointment.ListOpts{Start: base.Add(-24 * time.Hour)}, []id.AppointmentID{future.ID, mid.ID}},
		{"page", appointment.ListOpts{Limit: 1, Offset: 2}, []id.AppointmentID{past.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListAppointments(ctx, c.ID, tt.opts)
			if err != nil {
				t.Fatalf("ListAppointments: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d appointments, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("[%d] = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}

	future.Status = appointment.StatusNoShow
	if err := s.UpdateAppointment(ctx, future); err != nil {
		t.Fatalf("UpdateAppointment: %v", err)
	}
	got, err := s.GetAppointment(ctx, future.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if got.Status != appointment.StatusNoShow {
		t.Errorf("Status = %s, want no_show", got.Status)
	}
	wantHours(t, "Duration", got.Duration, "1")

	if _, err := s.GetAppointment(ctx, id.NewAppointmentID()); !errors.Is(err, hourbank.ErrAppointmentNotFound) {
		t.Errorf("GetAppointment(unknown) err = %v, want ErrAppointmentNotFound", err)
	}
}

func testTxUnknownCustomer(t *testing.T, s store.Store) {
	called := false
	err := s.WithCustomerTx(context.Background(), id.NewCustomerID(), func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, hourbank.ErrCustomerNotFound) {
		t.Errorf("err = %v, want ErrCustomerNotFound", err)
	}
	if called {
		t.Error("fn ran for an unknown customer")
	}
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seedCustomer(t, s, "Dora")
	lot := seedLot(t, s, c.ID, 3, "4")

	appt := &appointment.Appointment{
		Entity:      types.NewEntityAt(base),
		ID:          id.NewAppointmentID(),
		CustomerID:  c.ID,
		ScheduledAt: base,
		Duration:    h("1.5"),
		Status:      appointment.StatusCompleted,
		Notes:       appointment.DebitNote(""),
	}

	err := s.WithCustomerTx(ctx, c.ID, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetRemaining(ctx, lot.ID, h("2.5")); err != nil {
			return err
		}
		lots, err := tx.AvailableLots(ctx)
		if err != nil {
			return err
		}
		if len(lots) != 1 || !lots[0].RemainingHours.Equal(h("2.5")) {
			t.Errorf("AvailableLots inside tx does not see own write: %v", lots)
		}
		if err := tx.CreateAppointment(ctx, appt); err != nil {
			return err
		}
		got, err := tx.GetAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		if got.Notes != "Débito de horas" {
			t.Errorf("Notes inside tx = %q", got.Notes)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithCustomerTx: %v", err)
	}

	wantHours(t, "remaining", remaining(t, s, lot.ID), "2.5")
	if _, err := s.GetAppointment(ctx, appt.ID); err != nil {
		t.Errorf("appointment not committed: %v", err)
	}
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := seedCustomer(t, s, "Edu")
	lot := seedLot(t, s, c.ID, 3, "4")
	apptID := id.NewAppointmentID()
	boom := errors.New("boom")

	err := s.WithCustomerTx(ctx, c.ID, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetRemaining(ctx, lot.ID, types.ZeroHours); err != nil {
			return err
		}
		a := &appointment.Appointment{
			Entity:      types.NewEntityAt(base),
			ID:          apptID,
			CustomerID:  c.ID,
			ScheduledAt: base,
			Duration:    h("4"),
			Status:      appointment.StatusCompleted,
		}
		if err := tx.CreateAppointment(ctx, a); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the function's error", err)
	}

	wantHours(t, "remaining after rollback", remaining(t, s, lot.ID), "4")
	if _, err := s.GetAppointment(ctx, apptID); !errors.Is(err, hourbank.ErrAppointmentNotFound) {
		t.Errorf("appointment survived rollback: err = %v", err)
	}
}

func testTxForeignLot(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := seedCustomer(t, s, "Fabi")
	b := seedCustomer(t, s, "Gil")
	lot := seedLot(t, s, b.ID, 1, "3")

	err := s.WithCustomerTx(ctx, a.ID, func(ctx context.Context, tx store.Tx) error {
		return tx.SetRemaining(ctx, lot.ID, types.ZeroHours)
	})
	if !errors.Is(err, hourbank.ErrLotNotFound) {
		t.Errorf("SetRemaining(foreign lot) err = %v, want ErrLotNotFound", err)
	}
	wantHours(t, "foreign lot", remaining(t, s, lot.ID), "3")
}

func newBank(s store.Store) *hourbank.Bank {
	return hourbank.New(s,
		hourbank.WithClock(func() time.Time { return base }),
		hourbank.WithRetryBackoff(time.Millisecond),
		hourbank.WithConflictRetries(50),
	)
}

func testDebit(t *testing.T, s store.Store) {
	ctx := context.Background()
	bank := newBank(s)
	c := seedCustomer(t, s, "Hugo")

	lotA := seedLot(t, s, c.ID, 30, "2")
	lotB := seedLot(t, s, c.ID, 10, "3")
	lotC := seedLot(t, s, c.ID, 1, "5")

	res, err := bank.Debit(ctx, c.ID, h("3.5"), "")
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	wantHours(t, "lot A", remaining(t, s, lotA.ID), "0")
	wantHours(t, "lot B", remaining(t, s, lotB.ID), "1.5")
	wantHours(t, "lot C", remaining(t, s, lotC.ID), "5")
	if len(res.Deductions()) != 2 {
		t.Errorf("deductions = %d, want 2", len(res.Deductions()))
	}

	stored, err := s.GetAppointment(ctx, res.Appointment.ID)
	if err != nil {
		t.Fatalf("debit appointment not stored: %v", err)
	}
	if stored.Status != appointment.StatusCompleted || stored.Notes != "Débito de horas" {
		t.Errorf("appointment = %+v", stored)
	}
	wantHours(t, "appointment duration", stored.Duration, "3.5")
	if !stored.ScheduledAt.Equal(base) {
		t.Errorf("ScheduledAt = %v, want %v", stored.ScheduledAt, base)
	}

	// Insufficient: 6.5 available, 7 requested.
	_, err = bank.Debit(ctx, c.ID, h("7"), "grande")
	var ibe *hourbank.InsufficientBalanceError
	if !errors.As(err, &ibe) {
		t.Fatalf("err = %v, want InsufficientBalanceError", err)
	}
	wantHours(t, "available", ibe.Available, "6.5")
	wantHours(t, "lot B after reject", remaining(t, s, lotB.ID), "1.5")
	wantHours(t, "lot C after reject", remaining(t, s, lotC.ID), "5")

	appts, err := s.ListAppointments(ctx, c.ID, appointment.ListOpts{})
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if len(appts) != 1 {
		t.Errorf("appointments after reject = %d, want 1", len(appts))
	}

	// Exact drain of everything left.
	res, err = bank.Debit(ctx, c.ID, h("6.5"), "fechamento")
	if err != nil {
		t.Fatalf("Debit exact: %v", err)
	}
	if res.Appointment.Notes != "Débito de horas: fechamento" {
		t.Errorf("Notes = %q", res.Appointment.Notes)
	}
	bal, err := s.ListLots(ctx, c.ID, credit.ListOpts{OnlyAvailable: true})
	if err != nil {
		t.Fatalf("ListLots: %v", err)
	}
	if len(bal) != 0 {
		t.Errorf("lots still available after exact drain: %v", bal)
	}
}

func testConcurrentDebits(t *testing.T, s store.Store) {
	ctx := context.Background()
	bank := newBank(s)
	c := seedCustomer(t, s, "Iara")
	other := seedCustomer(t, s, "Jon")

	seedLot(t, s, c.ID, 3, "2")
	seedLot(t, s, c.ID, 2, "2")
	seedLot(t, s, c.ID, 1, "1")
	otherLot := seedLot(t, s, other.ID, 1, "10")

	const workers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ok  int
		bad []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := bank.Debit(ctx, c.ID, h("1"), "concorrente")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case !errors.Is(err, hourbank.ErrInsufficientBalance):
				bad = append(bad, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := bank.Debit(ctx, other.ID, h("4"), ""); err != nil {
			mu.Lock()
			bad = append(bad, err)
			mu.Unlock()
		}
	}()
	wg.Wait()

	for _, err := range bad {
		t.Errorf("unexpected debit error: %v", err)
	}
	if ok != 5 {
		t.Errorf("successful debits = %d, want 5", ok)
	}

	lots, err := s.ListLots(ctx, c.ID, credit.ListOpts{})
	if err != nil {
		t.Fatalf("ListLots: %v", err)
	}
	total := types.ZeroHours
	for _, l := range lots {
		if l.RemainingHours.IsNegative() {
			t.Errorf("lot %s went negative: %s", l.ID, l.RemainingHours)
		}
		total = total.Add(l.RemainingHours)
	}
	wantHours(t, "total remaining", total, "0")

	appts, err := s.ListAppointments(ctx, c.ID, appointment.ListOpts{})
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if len(appts) != ok {
		t.Errorf("appointments = %d, want %d", len(appts), ok)
	}
	wantHours(t, "other customer", remaining(t, s, otherLot.ID), "6")
}

func testCompleteAppointment(t *testing.T, s store.Store) {
	ctx := context.Background()
	bank := newBank(s)
	c := seedCustomer(t, s, "Kim")
	lot := seedLot(t, s, c.ID, 5, "2")

	a := &appointment.Appointment{
		CustomerID:  c.ID,
		ScheduledAt: base.Add(2 * time.Hour),
		Duration:    h("1.5"),
		Notes:       "Sessão semanal",
	}
	if err := bank.ScheduleAppointment(ctx, a); err != nil {
		t.Fatalf("ScheduleAppointment: %v", err)
	}
	wantHours(t, "remaining after schedule", remaining(t, s, lot.ID), "2")

	res, err := bank.CompleteAppointment(ctx, a.ID, "presente")
	if err != nil {
		t.Fatalf("CompleteAppointment: %v", err)
	}
	if res.Appointment.ID != a.ID || res.Appointment.Status != appointment.StatusCompleted {
		t.Errorf("completed appointment = %+v", res.Appointment)
	}
	wantHours(t, "remaining after complete", remaining(t, s, lot.ID), "0.5")

	got, err := s.GetAppointment(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if got.Status != appointment.StatusCompleted || got.Notes != "Sessão semanal\nDébito de horas: presente" {
		t.Errorf("stored appointment = %+v", got)
	}

	if _, err := bank.CompleteAppointment(ctx, a.ID, ""); !errors.Is(err, hourbank.ErrNotScheduled) {
		t.Errorf("second completion err = %v, want ErrNotScheduled", err)
	}

	big := &appointment.Appointment{CustomerID: c.ID, ScheduledAt: base.Add(4 * time.Hour), Duration: h("1")}
	if err := bank.ScheduleAppointment(ctx, big); err != nil {
		t.Fatalf("ScheduleAppointment: %v", err)
	}
	if _, err := bank.CompleteAppointment(ctx, big.ID, ""); !errors.Is(err, hourbank.ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
	got, _ = s.GetAppointment(ctx, big.ID)
	if got.Status != appointment.StatusScheduled {
		t.Errorf("status after failed completion = %s, want scheduled", got.Status)
	}
	wantHours(t, "remaining after failed completion", remaining(t, s, lot.ID), "0.5")
}
