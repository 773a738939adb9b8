// Package postgres implements store.Store on PostgreSQL through grove and
// its pgdriver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"

	// Registers the "pg" migration executor.
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
//
// Customer transactions lock the customer row with SELECT ... FOR UPDATE
// and then the customer's available lots, so debits for one customer are
// serialized while other customers proceed in parallel.
type Store struct {
	db          *grove.DB
	pg          *pgdriver.PgDB
	lockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a customer transaction waits for row
// locks. Expiry surfaces as hourbank.ErrStorageConflict. Zero waits forever.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New creates a new PostgreSQL store backed by Grove ORM.
// Tables live in the connection's search_path; set it in the DSN to use a
// dedicated schema.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		pg:          pgdriver.Unwrap(db),
		lockTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn through pgdriver and wraps the handle in a Store.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pgdb := pgdriver.New()
	if err := pgdb.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("hourbank/postgres: open: %w", err)
	}
	db, err := grove.Open(pgdb)
	if err != nil {
		_ = pgdb.Close()
		return nil, fmt.Errorf("hourbank/postgres: open: %w", err)
	}
	return New(db, opts...), nil
}

// DB returns the underlying grove database handle.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate runs the hourbank migration group through the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("hourbank/postgres: create migration executor: %w", err)
	}
	if _, err := migrate.NewOrchestrator(executor, Migrations).Migrate(ctx); err != nil {
		return fmt.Errorf("hourbank/postgres: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	_, err := s.pg.NewInsert(toCustomerModel(c)).Exec(ctx)
	return classify("create customer", err)
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	m := new(customerModel)
	err := s.pg.NewSelect(m).Where("id = $1", customerID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hourbank.ErrCustomerNotFound
		}
		return nil, classify("get customer", err)
	}
	return fromCustomerModel(m)
}

func (s *Store) ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	var models []customerModel
	q := s.pg.NewSelect(&models).OrderExpr(`name COLLATE "C", id`)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list customers", err)
	}

	result := make([]*customer.Customer, 0, len(models))
	for i := range models {
		c, err := fromCustomerModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	res, err := s.pg.NewUpdate(toCustomerModel(c)).
		Column("name", "email", "phone", "notes", "metadata", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return classify("update customer", err)
	}
	return requireRow(res, hourbank.ErrCustomerNotFound)
}

// ==================== Credit Store ====================

func (s *Store) CreateLot(ctx context.Context, l *credit.Lot) error {
	_, err := s.pg.NewInsert(toLotModel(l)).Exec(ctx)
	return classify("create lot", err)
}

func (s *Store) GetLot(ctx context.Context, lotID id.LotID) (*credit.Lot, error) {
	m := new(lotModel)
	err := s.pg.NewSelect(m).Where("id = $1", lotID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hourbank.ErrLotNotFound
		}
		return nil, classify("get lot", err)
	}
	return fromLotModel(m)
}

func (s *Store) ListLots(ctx context.Context, customerID id.CustomerID, opts credit.ListOpts) ([]*credit.Lot, error) {
	var models []lotModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())
	if opts.OnlyAvailable {
		q = q.Where("remaining_hours > 0")
	}
	q = q.OrderExpr("purchase_date, id")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list lots", err)
	}
	return fromLotModels(models)
}

// ==================== Appointment Store ====================

func (s *Store) CreateAppointment(ctx context.Context, a *appointment.Appointment) error {
	_, err := s.pg.NewInsert(toAppointmentModel(a)).Exec(ctx)
	return classify("create appointment", err)
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	m := new(appointmentModel)
	err := s.pg.NewSelect(m).Where("id = $1", appointmentID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hourbank.ErrAppointmentNotFound
		}
		return nil, classify("get appointment", err)
	}
	return fromAppointmentModel(m)
}

func (s *Store) ListAppointments(ctx context.Context, customerID id.CustomerID, opts appointment.ListOpts) ([]*appointment.Appointment, error) {
	var models []appointmentModel
	q := s.pg.NewSelect(&models).Where("customer_id = $1", customerID.String())
	argIdx := 1
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if !opts.Start.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("scheduled_at >= $%d", argIdx), opts.Start)
	}
	if !opts.End.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("scheduled_at < $%d", argIdx), opts.End)
	}
	q = q.OrderExpr("scheduled_at DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list appointments", err)
	}

	result := make([]*appointment.Appointment, 0, len(models))
	for i := range models {
		a, err := fromAppointmentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

func (s *Store) UpdateAppointment(ctx context.Context, a *appointment.Appointment) error {
	res, err := s.pg.NewUpdate(toAppointmentModel(a)).
		Column(appointmentMutableColumns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return classify("update appointment", err)
	}
	return requireRow(res, hourbank.ErrAppointmentNotFound)
}

// ==================== Helpers ====================

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffecter, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for the standard "no rows" sentinel error.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// classify maps PostgreSQL error codes onto hourbank sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available
			return fmt.Errorf("%w: %s: %s", hourbank.ErrStorageConflict, op, pgErr.Message)
		case "23505": // unique_violation
			return hourbank.ErrAlreadyExists
		case "23503": // foreign_key_violation
			return hourbank.ErrCustomerNotFound
		case "23514": // check_violation
			return fmt.Errorf("%w: %s: %s", hourbank.ErrInvalidInput, op, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("hourbank/postgres: %s: %w", op, err)
}
