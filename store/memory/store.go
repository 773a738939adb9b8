// Package memory provides an in-memory store.Store for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps every entity in maps keyed by ID string. Values handed out
// are copies, so callers never alias stored state.
type Store struct {
	mu sync.RWMutex

	customers    map[string]*customer.Customer
	lots         map[string]*credit.Lot
	appointments map[string]*appointment.Appointment
	closed       bool

	locks *customerLocks
}

// New creates an empty memory store.
func New() *Store {
	return &Store{
		customers:    make(map[string]*customer.Customer),
		lots:         make(map[string]*credit.Lot),
		appointments: make(map[string]*appointment.Appointment),
		locks:        newCustomerLocks(),
	}
}

// ──────────────────────────────────────────────────
// Customer Store
// ──────────────────────────────────────────────────

func (s *Store) CreateCustomer(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return hourbank.ErrStoreClosed
	}
	if _, exists := s.customers[c.ID.String()]; exists {
		return hourbank.ErrAlreadyExists
	}
	s.customers[c.ID.String()] = cloneCustomer(c)
	return nil
}

func (s *Store) GetCustomer(_ context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.customers[customerID.String()]; ok {
		return cloneCustomer(c), nil
	}
	return nil, hourbank.ErrCustomerNotFound
}

func (s *Store) ListCustomers(_ context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*customer.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		result = append(result, cloneCustomer(c))
	}
	slices.SortFunc(result, customer.CompareByName)
	return store.Page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) UpdateCustomer(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[c.ID.String()]; !ok {
		return hourbank.ErrCustomerNotFound
	}
	s.customers[c.ID.String()] = cloneCustomer(c)
	return nil
}

// ──────────────────────────────────────────────────
// Credit Store
// ──────────────────────────────────────────────────

func (s *Store) CreateLot(_ context.Context, l *credit.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return hourbank.ErrStoreClosed
	}
	if _, ok := s.customers[l.CustomerID.String()]; !ok {
		return hourbank.ErrCustomerNotFound
	}
	if _, exists := s.lots[l.ID.String()]; exists {
		return hourbank.ErrAlreadyExists
	}
	cp := *l
	s.lots[l.ID.String()] = &cp
	return nil
}

func (s *Store) GetLot(_ context.Context, lotID id.LotID) (*credit.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.lots[lotID.String()]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, hourbank.ErrLotNotFound
}

func (s *Store) ListLots(_ context.Context, customerID id.CustomerID, opts credit.ListOpts) ([]*credit.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.customerLots(customerID, opts.OnlyAvailable)
	return store.Page(result, opts.Limit, opts.Offset), nil
}

// customerLots returns copies of a customer's lots in FIFO order.
// Callers must hold s.mu.
func (s *Store) customerLots(customerID id.CustomerID, onlyAvailable bool) []*credit.Lot {
	var result []*credit.Lot
	for _, l := range s.lots {
		if l.CustomerID != customerID {
			continue
		}
		if onlyAvailable && !l.Available() {
			continue
		}
		cp := *l
		result = append(result, &cp)
	}
	credit.SortFIFO(result)
	return result
}

// ──────────────────────────────────────────────────
// Appointment Store
// ──────────────────────────────────────────────────

func (s *Store) CreateAppointment(_ context.Context, a *appointment.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return hourbank.ErrStoreClosed
	}
	if _, ok := s.customers[a.CustomerID.String()]; !ok {
		return hourbank.ErrCustomerNotFound
	}
	if _, exists := s.appointments[a.ID.String()]; exists {
		return hourbank.ErrAlreadyExists
	}
	cp := *a
	s.appointments[a.ID.String()] = &cp
	return nil
}

func (s *Store) GetAppointment(_ context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.appointments[appointmentID.String()]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, hourbank.ErrAppointmentNotFound
}

func (s *Store) ListAppointments(_ context.Context, customerID id.CustomerID, opts appointment.ListOpts) ([]*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*appointment.Appointment
	for _, a := range s.appointments {
		if a.CustomerID != customerID || !opts.Match(a) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	slices.SortFunc(result, appointment.CompareNewestFirst)
	return store.Page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) UpdateAppointment(_ context.Context, a *appointment.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[a.ID.String()]; !ok {
		return hourbank.ErrAppointmentNotFound
	}
	cp := *a
	s.appointments[a.ID.String()] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// WithCustomerTx serializes on a per-customer lock. Writes made through tx
// are staged and applied atomically under the store lock when fn succeeds.
func (s *Store) WithCustomerTx(ctx context.Context, customerID id.CustomerID, fn store.TxFunc) error {
	s.mu.RLock()
	closed := s.closed
	_, exists := s.customers[customerID.String()]
	s.mu.RUnlock()

	if closed {
		return hourbank.ErrStoreClosed
	}
	if !exists {
		return hourbank.ErrCustomerNotFound
	}

	unlock, err := s.locks.lock(ctx, customerID.String())
	if err != nil {
		return err
	}
	defer unlock()

	t := &tx{
		s:          s,
		customerID: customerID,
		remaining:  make(map[string]types.Hours),
		appts:      make(map[string]*appointment.Appointment),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}

	return t.commit()
}

type tx struct {
	s          *Store
	customerID id.CustomerID

	remaining map[string]types.Hours
	appts     map[string]*appointment.Appointment
}

var _ store.Tx = (*tx)(nil)

func (t *tx) AvailableLots(_ context.Context) ([]*credit.Lot, error) {
	t.s.mu.RLock()
	lots := t.s.customerLots(t.customerID, false)
	t.s.mu.RUnlock()

	result := lots[:0]
	for _, l := range lots {
		if r, ok := t.remaining[l.ID.String()]; ok {
			l.RemainingHours = r
		}
		if l.Available() {
			result = append(result, l)
		}
	}
	return result, nil
}

func (t *tx) SetRemaining(_ context.Context, lotID id.LotID, remaining types.Hours) error {
	if remaining.IsNegative() {
		return fmt.Errorf("%w: remaining hours %s is negative", hourbank.ErrInvalidInput, remaining)
	}

	t.s.mu.RLock()
	l, ok := t.s.lots[lotID.String()]
	t.s.mu.RUnlock()

	if !ok || l.CustomerID != t.customerID {
		return hourbank.ErrLotNotFound
	}
	t.remaining[lotID.String()] = remaining
	return nil
}

func (t *tx) CreateAppointment(_ context.Context, a *appointment.Appointment) error {
	if a.CustomerID != t.customerID {
		return fmt.Errorf("%w: appointment belongs to another customer", hourbank.ErrInvalidInput)
	}
	key := a.ID.String()

	t.s.mu.RLock()
	_, exists := t.s.appointments[key]
	t.s.mu.RUnlock()

	if _, staged := t.appts[key]; exists || staged {
		return hourbank.ErrAlreadyExists
	}
	cp := *a
	t.appts[key] = &cp
	return nil
}

func (t *tx) GetAppointment(_ context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	key := appointmentID.String()
	if a, ok := t.appts[key]; ok {
		cp := *a
		return &cp, nil
	}

	t.s.mu.RLock()
	a, ok := t.s.appointments[key]
	t.s.mu.RUnlock()

	if !ok || a.CustomerID != t.customerID {
		return nil, hourbank.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *tx) UpdateAppointment(ctx context.Context, a *appointment.Appointment) error {
	if _, err := t.GetAppointment(ctx, a.ID); err != nil {
		return err
	}
	if a.CustomerID != t.customerID {
		return fmt.Errorf("%w: appointment belongs to another customer", hourbank.ErrInvalidInput)
	}
	cp := *a
	t.appts[a.ID.String()] = &cp
	return nil
}

func (t *tx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.s.closed {
		return hourbank.ErrStoreClosed
	}
	for key, r := range t.remaining {
		l := t.s.lots[key]
		cp := *l
		cp.RemainingHours = r
		t.s.lots[key] = &cp
	}
	for key, a := range t.appts {
		t.s.appointments[key] = a
	}
	return nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return hourbank.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func cloneCustomer(c *customer.Customer) *customer.Customer {
	cp := *c
	cp.Metadata = maps.Clone(c.Metadata)
	return &cp
}
