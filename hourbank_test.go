package hourbank_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/plugin"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/store/memory"
	"github.com/billbuddy/hourbank/types"
)

var now = time.Date(2024, time.May, 10, 14, 0, 0, 0, time.UTC)

func h(s string) types.Hours { return types.MustParseHours(s) }

func newBank(t *testing.T, opts ...hourbank.Option) (*hourbank.Bank, *memory.Store) {
	t.Helper()
	s := memory.New()
	opts = append([]hourbank.Option{hourbank.WithClock(func() time.Time { return now })}, opts...)
	b := hourbank.New(s, opts...)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop() })
	return b, s
}

func mustCustomer(t *testing.T, b *hourbank.Bank, name string) *customer.Customer {
	t.Helper()
	c := &customer.Customer{Name: name}
	if err := b.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	return c
}

func mustLot(t *testing.T, b *hourbank.Bank, customerID id.CustomerID, purchased time.Time, hours string) *credit.Lot {
	t.Helper()
	l := &credit.Lot{CustomerID: customerID, PurchaseDate: purchased, HoursPurchased: h(hours), PricePaid: types.BRL(15000)}
	if err := b.PurchaseCredit(context.Background(), l); err != nil {
		t.Fatalf("PurchaseCredit: %v", err)
	}
	return l
}

func remaining(t *testing.T, b *hourbank.Bank, lotID id.LotID) types.Hours {
	t.Helper()
	l, err := b.GetLot(context.Background(), lotID)
	if err != nil {
		t.Fatalf("GetLot: %v", err)
	}
	return l.RemainingHours
}

func TestDebit_FIFO(t *testing.T) {
	tests := []struct {
		name      string
		lots      []string // oldest first
		request   string
		remaining []string
		touched   int
	}{
		{"single lot partial", []string{"5"}, "2", []string{"3"}, 1},
		{"exact single lot", []string{"2", "3"}, "2", []string{"0", "3"}, 1},
		{"spans two lots", []string{"2", "3"}, "3.5", []string{"0", "1.5"}, 2},
		{"drains everything", []string{"1", "1.25", "0.75"}, "3", []string{"0", "0", "0"}, 3},
		{"fractional", []string{"0.5", "4"}, "0.75", []string{"0", "3.75"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newBank(t)
			c := mustCustomer(t, b, "Olga")

			lots := make([]*credit.Lot, len(tt.lots))
			for i, hrs := range tt.lots {
				lots[i] = mustLot(t, b, c.ID, now.AddDate(0, 0, -len(tt.lots)+i), hrs)
			}

			res, err := b.Debit(context.Background(), c.ID, h(tt.request), "")
			if err != nil {
				t.Fatalf("Debit: %v", err)
			}
			for i, want := range tt.remaining {
				if got := remaining(t, b, lots[i].ID); !got.Equal(h(want)) {
					t.Errorf("lot %d remaining = %s, want %s", i, got, want)
				}
			}
			if len(res.Deductions()) != tt.touched {
				t.Errorf("deductions = %d, want %d", len(res.Deductions()), tt.touched)
			}
			if !res.Drain.Drawn().Equal(h(tt.request)) {
				t.Errorf("drawn = %s, want %s", res.Drain.Drawn(), tt.request)
			}
		})
	}
}

func TestDebit_Appointment(t *testing.T) {
	b, _ := newBank(t)
	c := mustCustomer(t, b, "Paulo")
	mustLot(t, b, c.ID, now.AddDate(0, -1, 0), "10")

	tests := []struct {
		reason string
		notes  string
	}{
		{"", "Débito de horas"},
		{"consultoria", "Débito de horas: consultoria"},
	}
	for _, tt := range tests {
		res, err := b.Debit(context.Background(), c.ID, h("1"), tt.reason)
		if err != nil {
			t.Fatalf("Debit: %v", err)
		}
		a := res.Appointment
		if a.Notes != tt.notes {
			t.Errorf("Notes = %q, want %q", a.Notes, tt.notes)
		}
		if a.Status != appointment.StatusCompleted {
			t.Errorf("Status = %s, want completed", a.Status)
		}
		if !a.ScheduledAt.Equal(now) {
			t.Errorf("ScheduledAt = %v, want %v", a.ScheduledAt, now)
		}
		if a.CustomerID != c.ID || !a.Duration.Equal(h("1")) {
			t.Errorf("appointment = %+v", a)
		}
	}
}

func TestDebit_InsufficientRollsBack(t *testing.T) {
	b, s := newBank(t)
	c := mustCustomer(t, b, "Quintino")
	l1 := mustLot(t, b, c.ID, now.AddDate(0, 0, -2), "1")
	l2 := mustLot(t, b, c.ID, now.AddDate(0, 0, -1), "1.5")

	_, err := b.Debit(context.Background(), c.ID, h("3"), "")
	if !errors.Is(err, hourbank.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if !hourbank.IsBalanceError(err) || hourbank.IsRetryable(err) {
		t.Errorf("classification wrong for %v", err)
	}

	var ibe *hourbank.InsufficientBalanceError
	if !errors.As(err, &ibe) {
		t.Fatalf("err is not InsufficientBalanceError")
	}
	if !ibe.Shortfall().Equal(h("0.5")) {
		t.Errorf("Shortfall = %s, want 0.5", ibe.Shortfall())
	}

	if got := remaining(t, b, l1.ID); !got.Equal(h("1")) {
		t.Errorf("lot 1 remaining = %s, want 1", got)
	}
	if got := remaining(t, b, l2.ID); !got.Equal(h("1.5")) {
		t.Errorf("lot 2 remaining = %s, want 1.5", got)
	}
	appts, _ := s.ListAppointments(context.Background(), c.ID, appointment.ListOpts{})
	if len(appts) != 0 {
		t.Errorf("appointments = %d, want 0", len(appts))
	}
}

func TestDebit_NoLots(t *testing.T) {
	b, _ := newBank(t)
	c := mustCustomer(t, b, "Rita")

	if b.TryDebit(context.Background(), c.ID, h("1"), "") {
		t.Error("TryDebit succeeded with no lots")
	}
	_, err := b.Debit(context.Background(), c.ID, h("1"), "")
	if !errors.Is(err, hourbank.ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
}

type countingStore struct {
	store.Store
	txCalls int
}

func (c *countingStore) WithCustomerTx(ctx context.Context, customerID id.CustomerID, fn store.TxFunc) error {
	c.txCalls++
	return c.Store.WithCustomerTx(ctx, customerID, fn)
}

func TestDebit_InvalidRequest(t *testing.T) {
	cs := &countingStore{Store: memory.New()}
	b := hourbank.New(cs)

	c := &customer.Customer{Name: "Saulo"}
	if err := b.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	tests := []struct {
		name       string
		customerID id.CustomerID
		hours      types.Hours
	}{
		{"zero", c.ID, types.ZeroHours},
		{"negative", c.ID, h("-1")},
		{"nil customer", id.Nil, h("1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Debit(context.Background(), tt.customerID, tt.hours, "")
			if !errors.Is(err, hourbank.ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
	if cs.txCalls != 0 {
		t.Errorf("store transactions opened = %d, want 0", cs.txCalls)
	}
}

func TestDebit_UnknownCustomer(t *testing.T) {
	b, _ := newBank(t)
	_, err := b.Debit(context.Background(), id.NewCustomerID(), h("1"), "")
	if !errors.Is(err, hourbank.ErrCustomerNotFound) || !hourbank.IsNotFound(err) {
		t.Errorf("err = %v, want ErrCustomerNotFound", err)
	}
}

func TestDebit_SameInstantTieBreak(t *testing.T) {
	b, _ := newBank(t)
	c := mustCustomer(t, b, "Tânia")
	first := mustLot(t, b, c.ID, now, "1")
	time.Sleep(2 * time.Millisecond)
	second := mustLot(t, b, c.ID, now, "1")

	if _, err := b.Debit(context.Background(), c.ID, h("1"), ""); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if got := remaining(t, b, first.ID); !got.IsZero() {
		t.Errorf("first lot remaining = %s, want 0", got)
	}
	if got := remaining(t, b, second.ID); !got.Equal(h("1")) {
		t.Errorf("second lot remaining = %s, want 1", got)
	}
}

// flakyStore reports a conflict for the first n transactions.
type flakyStore struct {
	store.Store
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (f *flakyStore) WithCustomerTx(ctx context.Context, customerID id.CustomerID, fn store.TxFunc) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.conflicts
	f.mu.Unlock()
	if fail {
		return hourbank.ErrStorageConflict
	}
	return f.Store.WithCustomerTx(ctx, customerID, fn)
}

func TestDebit_RetriesConflicts(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int
		retries   int
		wantErr   bool
		wantCalls int
	}{
		{"recovers", 2, 3, false, 3},
		{"exhausted", 5, 2, true, 3},
		{"disabled", 1, 0, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &flakyStore{Store: memory.New(), conflicts: tt.conflicts}
			b := hourbank.New(fs, hourbank.WithConflictRetries(tt.retries), hourbank.WithRetryBackoff(time.Microsecond))
			c := mustCustomer(t, b, "Ugo")
			mustLot(t, b, c.ID, now, "5")

			_, err := b.Debit(context.Background(), c.ID, h("1"), "")
			if tt.wantErr {
				if !hourbank.IsRetryable(err) {
					t.Errorf("err = %v, want retryable conflict", err)
				}
			} else if err != nil {
				t.Errorf("Debit: %v", err)
			}
			if fs.calls != tt.wantCalls {
				t.Errorf("transactions = %d, want %d", fs.calls, tt.wantCalls)
			}
		})
	}
}

func TestDebit_CanceledDuringBackoff(t *testing.T) {
	fs := &flakyStore{Store: memory.New(), conflicts: 100}
	b := hourbank.New(fs, hourbank.WithConflictRetries(10), hourbank.WithRetryBackoff(time.Hour))
	c := mustCustomer(t, b, "Vera")
	mustLot(t, b, c.ID, now, "5")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Debit(ctx, c.ID, h("1"), "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Debit returned after %s, want prompt return on cancel", elapsed)
	}
	if fs.calls != 1 {
		t.Errorf("transactions = %d, want 1", fs.calls)
	}
}

func TestWithPlugin_DuplicateLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	b := hourbank.New(memory.New(),
		hourbank.WithLogger(logger),
		hourbank.WithPlugin(&recorder{}),
		hourbank.WithPlugin(&recorder{}),
	)

	if got := b.Plugins().Count(); got != 1 {
		t.Errorf("plugins = %d, want 1", got)
	}
	out := buf.String()
	if !strings.Contains(out, "plugin not registered") || !strings.Contains(out, "recorder") {
		t.Errorf("duplicate registration not logged: %q", out)
	}
}

func TestDebit_ConcurrentSameCustomer(t *testing.T) {
	b, _ := newBank(t)
	c := mustCustomer(t, b, "Vera")
	mustLot(t, b, c.ID, now.AddDate(0, 0, -1), "3")
	mustLot(t, b, c.ID, now, "2")

	const workers = 20
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryDebit(context.Background(), c.ID, h("0.5"), "") {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 10 {
		t.Errorf("successful debits = %d, want 10", ok)
	}
	bal, err := b.Balance(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !bal.Remaining.IsZero() || !bal.Consumed.Equal(h("5")) {
		t.Errorf("balance = %+v", bal)
	}
}

func TestPurchaseCredit(t *testing.T) {
	b, _ := newBank(t)
	c := mustCustomer(t, b, "Wagner")

	l := &credit.Lot{CustomerID: c.ID, HoursPurchased: h("10"), RemainingHours: h("3")}
	if err := b.PurchaseCredit(context.Background(), l); err != nil {
		t.Fatalf("PurchaseCredit: %v", err)
	}
	if !l.RemainingHours.Equal(h("10")) {
		t.Errorf("RemainingHours = %s, want 10", l.RemainingHours)
	}
	if !l.PurchaseDate.Equal(now) {
		t.Errorf("PurchaseDate = %v, want %v", l.PurchaseDate, now)
	}
	if l.PricePaid.Currency != types.DefaultCurrency {
		t.Errorf("Currency = %q", l.PricePaid.Currency)
	}

	invalid := []*credit.Lot{
		{CustomerID: c.ID, HoursPurchased: types.ZeroHours},
		{CustomerID: c.ID, HoursPurchased: h("-2")},
		{HoursPurchased: h("1")},
		{CustomerID: c.ID, HoursPurchased: h("1"), PricePaid: types.BRL(-100)},
	}
	for i, lot := range invalid {
		var ve hourbank.ValidationError
		if err := b.PurchaseCredit(context.Background(), lot); !errors.As(err, &ve) || !errors.Is(err, hourbank.ErrInvalidInput) {
			t.Errorf("[%d] err = %v, want ValidationError", i, err)
		}
	}

	err := b.PurchaseCredit(context.Background(), &credit.Lot{CustomerID: id.NewCustomerID(), HoursPurchased: h("1")})
	if !errors.Is(err, hourbank.ErrCustomerNotFound) {
		t.Errorf("unknown customer err = %v", err)
	}
}

func TestBalance(t *testing.T) {
	b, _ := newBank(t)
	c := mustCustomer(t, b, "Xuxa")
	mustLot(t, b, c.ID, now.AddDate(0, -2, 0), "2")
	mustLot(t, b, c.ID, now.AddDate(0, -1, 0), "4")

	if _, err := b.Debit(context.Background(), c.ID, h("2.5"), ""); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	bal, err := b.Balance(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !bal.Purchased.Equal(h("6")) || !bal.Remaining.Equal(h("3.5")) || !bal.Consumed.Equal(h("2.5")) {
		t.Errorf("balance totals = %+v", bal)
	}
	if bal.Lots != 2 || bal.AvailableLots != 1 {
		t.Errorf("lots = %d/%d, want 2/1", bal.AvailableLots, bal.Lots)
	}
	if !bal.Covers(h("3.5")) || bal.Covers(h("3.6")) {
		t.Error("Covers wrong")
	}

	if _, err := b.Balance(context.Background(), id.NewCustomerID()); !errors.Is(err, hourbank.ErrCustomerNotFound) {
		t.Errorf("unknown customer err = %v", err)
	}
}

func TestCustomers(t *testing.T) {
	b, _ := newBank(t)

	if err := b.CreateCustomer(context.Background(), &customer.Customer{Name: "  "}); !errors.Is(err, hourbank.ErrInvalidInput) {
		t.Errorf("blank name err = %v", err)
	}

	c := mustCustomer(t, b, "Yara")
	if c.ID.Prefix() != id.PrefixCustomer {
		t.Errorf("ID prefix = %s", c.ID.Prefix())
	}

	c.Phone = "+5521988887777"
	if err := b.UpdateCustomer(context.Background(), c); err != nil {
		t.Fatalf("UpdateCustomer: %v", err)
	}
	got, err := b.GetCustomer(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if got.Phone != "+5521988887777" {
		t.Errorf("Phone = %q", got.Phone)
	}

	list, err := b.ListCustomers(context.Background(), customer.ListOpts{})
	if err != nil || len(list) != 1 {
		t.Errorf("ListCustomers = %v, %v", list, err)
	}
}

func TestAppointments(t *testing.T) {
	b, _ := newBank(t)
	c := mustCustomer(t, b, "Zeca")
	mustLot(t, b, c.ID, now.AddDate(0, 0, -7), "3")

	a := &appointment.Appointment{CustomerID: c.ID, ScheduledAt: now.Add(24 * time.Hour), Duration: h("1")}
	if err := b.ScheduleAppointment(context.Background(), a); err != nil {
		t.Fatalf("ScheduleAppointment: %v", err)
	}
	if a.Status != appointment.StatusScheduled {
		t.Errorf("Status = %s", a.Status)
	}

	canceled, err := b.CancelAppointment(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	if canceled.Status != appointment.StatusCanceled {
		t.Errorf("Status after cancel = %s", canceled.Status)
	}
	if _, err := b.CompleteAppointment(context.Background(), a.ID, ""); !errors.Is(err, hourbank.ErrNotScheduled) {
		t.Errorf("complete canceled err = %v, want ErrNotScheduled", err)
	}
	if _, err := b.CancelAppointment(context.Background(), a.ID); !errors.Is(err, hourbank.ErrNotScheduled) {
		t.Errorf("double cancel err = %v, want ErrNotScheduled", err)
	}

	bad := []*appointment.Appointment{
		{CustomerID: c.ID, ScheduledAt: now, Duration: types.ZeroHours},
		{CustomerID: c.ID, Duration: h("1")},
		{ScheduledAt: now, Duration: h("1")},
	}
	for i, appt := range bad {
		if err := b.ScheduleAppointment(context.Background(), appt); !errors.Is(err, hourbank.ErrInvalidInput) {
			t.Errorf("[%d] err = %v, want ErrInvalidInput", i, err)
		}
	}

	list, err := b.ListAppointments(context.Background(), c.ID, appointment.ListOpts{Status: appointment.StatusCanceled})
	if err != nil || len(list) != 1 {
		t.Errorf("ListAppointments(canceled) = %v, %v", list, err)
	}
	bal, _ := b.Balance(context.Background(), c.ID)
	if !bal.Remaining.Equal(h("3")) {
		t.Errorf("cancel moved hours: remaining = %s", bal.Remaining)
	}
}

type recorder struct {
	mu        sync.Mutex
	completed []*plugin.DebitEvent
	rejected  []*plugin.DebitEvent
	created   int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnCustomerCreated(context.Context, *customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	return nil
}

func (r *recorder) OnDebitCompleted(_ context.Context, ev *plugin.DebitEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, ev)
	return nil
}

func (r *recorder) OnDebitRejected(_ context.Context, ev *plugin.DebitEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, ev)
	return errors.New("hook errors are swallowed")
}

func TestDebit_PluginEvents(t *testing.T) {
	rec := &recorder{}
	b, _ := newBank(t, hourbank.WithPlugin(rec))
	c := mustCustomer(t, b, "Ana")
	mustLot(t, b, c.ID, now, "1")

	if _, err := b.Debit(context.Background(), c.ID, h("1"), "ok"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if _, err := b.Debit(context.Background(), c.ID, h("1"), "empty"); err == nil {
		t.Fatal("second debit succeeded")
	}

	if rec.created != 1 {
		t.Errorf("OnCustomerCreated calls = %d", rec.created)
	}
	if len(rec.completed) != 1 || rec.completed[0].Appointment == nil || rec.completed[0].Attempts != 1 {
		t.Errorf("completed events = %+v", rec.completed)
	}
	if len(rec.rejected) != 1 || !errors.Is(rec.rejected[0].Err, hourbank.ErrInsufficientBalance) {
		t.Errorf("rejected events = %+v", rec.rejected)
	}
}
