// Package sqlite implements store.Store on SQLite through grove and its
// sqlitedriver (pure-Go modernc.org/sqlite underneath).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/url"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"

	// Registers the "sqlite" migration executor.
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
//
// Customer transactions begin IMMEDIATE, taking the database write lock up
// front. SQLite has a single writer, so this serializes all debits; readers
// are unaffected in WAL mode.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM. The connection must
// begin transactions IMMEDIATE (_txlock=immediate); Open configures that.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open opens (creating if needed) the database file at path with WAL
// journaling, foreign keys, a busy timeout and immediate transactions.
func Open(ctx context.Context, path string) (*Store, error) {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")

	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, "file:"+path+"?"+q.Encode()); err != nil {
		return nil, fmt.Errorf("hourbank/sqlite: open: %w", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("hourbank/sqlite: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database handle.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate runs the hourbank migration group through the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("hourbank/sqlite: create migration executor: %w", err)
	}
	if _, err := migrate.NewOrchestrator(executor, Migrations).Migrate(ctx); err != nil {
		return fmt.Errorf("hourbank/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	m, err := toCustomerModel(c)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return classify("create customer", err)
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	m := new(customerModel)
	err := s.sdb.NewSelect(m).Where("id = ?", customerID.String()).Scan(ctx)
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
	q := paged(s.sdb.NewSelect(&models).OrderExpr("name, id"), opts.Limit, opts.Offset)
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
	m, err := toCustomerModel(c)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewUpdate(m).
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
	_, err := s.sdb.NewInsert(toLotModel(l)).Exec(ctx)
	return classify("create lot", err)
}

func (s *Store) GetLot(ctx context.Context, lotID id.LotID) (*credit.Lot, error) {
	m := new(lotModel)
	err := s.sdb.NewSelect(m).Where("id = ?", lotID.String()).Scan(ctx)
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
	q := s.sdb.NewSelect(&models).Where("customer_id = ?", customerID.String())
	if opts.OnlyAvailable {
		q = q.Where(availableCond)
	}
	q = paged(q.OrderExpr("purchase_date, id"), opts.Limit, opts.Offset)
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list lots", err)
	}
	return fromLotModels(models)
}

// ==================== Appointment Store ====================

func (s *Store) CreateAppointment(ctx context.Context, a *appointment.Appointment) error {
	_, err := s.sdb.NewInsert(toAppointmentModel(a)).Exec(ctx)
	return classify("create appointment", err)
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	m := new(appointmentModel)
	err := s.sdb.NewSelect(m).Where("id = ?", appointmentID.String()).Scan(ctx)
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
	q := s.sdb.NewSelect(&models).Where("customer_id = ?", customerID.String())
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.Start.IsZero() {
		q = q.Where("scheduled_at >= ?", formatTime(opts.Start))
	}
	if !opts.End.IsZero() {
		q = q.Where("scheduled_at < ?", formatTime(opts.End))
	}
	q = paged(q.OrderExpr("scheduled_at DESC, id DESC"), opts.Limit, opts.Offset)
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list appointments", err)
	}
	return fromAppointmentModels(models)
}

func (s *Store) UpdateAppointment(ctx context.Context, a *appointment.Appointment) error {
	res, err := s.sdb.NewUpdate(toAppointmentModel(a)).
		Column(appointmentMutableColumns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return classify("update appointment", err)
	}
	return requireRow(res, hourbank.ErrAppointmentNotFound)
}

// ==================== Helpers ====================

// paged applies LIMIT/OFFSET. SQLite rejects OFFSET without LIMIT.
func paged(q *sqlitedriver.SelectQuery, limit, offset int) *sqlitedriver.SelectQuery {
	if offset > 0 && limit <= 0 {
		limit = math.MaxInt
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

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

// classify maps SQLite result codes onto hourbank sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		code := sqlErr.Code()
		switch {
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %s: %s", hourbank.ErrStorageConflict, op, sqlErr.Error())
		case code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, code == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return hourbank.ErrAlreadyExists
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return hourbank.ErrCustomerNotFound
		case code == sqlite3.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%w: %s", hourbank.ErrInvalidInput, op)
		}
	}
	return fmt.Errorf("hourbank/sqlite: %s: %w", op, err)
}
