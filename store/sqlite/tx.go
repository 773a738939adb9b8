package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/types"
)

// WithCustomerTx runs fn inside an IMMEDIATE transaction, so two debits
// can never read the same lots before either takes the write lock.
func (s *Store) WithCustomerTx(ctx context.Context, customerID id.CustomerID, fn store.TxFunc) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	exists := new(customerModel)
	if err := tx.NewSelect(exists).Where("id = ?", customerID.String()).Scan(ctx); err != nil {
		if isNoRows(err) {
			return hourbank.ErrCustomerNotFound
		}
		return classify("lock customer", err)
	}

	if err := fn(ctx, &sqliteTx{tx: tx, customerID: customerID}); err != nil {
		return err
	}

	return classify("commit", tx.Commit())
}

type sqliteTx struct {
	tx         *sqlitedriver.SqliteTx
	customerID id.CustomerID
}

var _ store.Tx = (*sqliteTx)(nil)

func (t *sqliteTx) AvailableLots(ctx context.Context) ([]*credit.Lot, error) {
	var models []lotModel
	err := t.tx.NewSelect(&models).
		Where("customer_id = ?", t.customerID.String()).
		Where(availableCond).
		OrderExpr("purchase_date, id").
		Scan(ctx)
	if err != nil {
		return nil, classify("available lots", err)
	}
	return fromLotModels(models)
}

func (t *sqliteTx) SetRemaining(ctx context.Context, lotID id.LotID, remaining types.Hours) error {
	if remaining.IsNegative() {
		return fmt.Errorf("%w: remaining hours %s is negative", hourbank.ErrInvalidInput, remaining)
	}
	res, err := t.tx.NewUpdate((*lotModel)(nil)).
		Set("remaining_hours = ?", remaining.String()).
		Set("updated_at = ?", formatTime(time.Now())).
		Where("id = ?", lotID.String()).
		Where("customer_id = ?", t.customerID.String()).
		Exec(ctx)
	if err != nil {
		return classify("set remaining", err)
	}
	return requireRow(res, hourbank.ErrLotNotFound)
}

func (t *sqliteTx) CreateAppointment(ctx context.Context, a *appointment.Appointment) error {
	if a.CustomerID != t.customerID {
		return fmt.Errorf("%w: appointment belongs to another customer", hourbank.ErrInvalidInput)
	}
	_, err := t.tx.NewInsert(toAppointmentModel(a)).Exec(ctx)
	return classify("create appointment", err)
}

func (t *sqliteTx) GetAppointment(ctx context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	m := new(appointmentModel)
	err := t.tx.NewSelect(m).
		Where("id = ?", appointmentID.String()).
		Where("customer_id = ?", t.customerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hourbank.ErrAppointmentNotFound
		}
		return nil, classify("get appointment", err)
	}
	return fromAppointmentModel(m)
}

func (t *sqliteTx) UpdateAppointment(ctx context.Context, a *appointment.Appointment) error {
	res, err := t.tx.NewUpdate(toAppointmentModel(a)).
		Column(appointmentMutableColumns...).
		WherePK().
		Where("customer_id = ?", t.customerID.String()).
		Exec(ctx)
	if err != nil {
		return classify("update appointment", err)
	}
	return requireRow(res, hourbank.ErrAppointmentNotFound)
}
