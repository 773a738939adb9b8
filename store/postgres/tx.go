package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/types"
)

// WithCustomerTx opens a READ COMMITTED transaction, locks the customer row
// and runs fn. The transaction commits only when fn returns nil.
func (s *Store) WithCustomerTx(ctx context.Context, customerID id.CustomerID, fn store.TxFunc) error {
	tx, err := s.pg.BeginTxQuery(ctx, &driver.TxOptions{IsolationLevel: driver.LevelReadCommitted})
	if err != nil {
		return classify("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.lockTimeout > 0 {
		// SET does not accept placeholders.
		stmt := fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, s.lockTimeout.Milliseconds())
		if _, err := tx.NewRaw(stmt).Exec(ctx); err != nil {
			return classify("set lock timeout", err)
		}
	}

	locked := new(customerModel)
	err = tx.NewSelect(locked).
		Where("id = $1", customerID.String()).
		ForUpdate().
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return hourbank.ErrCustomerNotFound
		}
		return classify("lock customer", err)
	}

	if err := fn(ctx, &pgTx{tx: tx, customerID: customerID}); err != nil {
		return err
	}

	return classify("commit", tx.Commit())
}

type pgTx struct {
	tx         *pgdriver.PgTx
	customerID id.CustomerID
}

var _ store.Tx = (*pgTx)(nil)

func (p *pgTx) AvailableLots(ctx context.Context) ([]*credit.Lot, error) {
	var models []lotModel
	err := p.tx.NewSelect(&models).
		Where("customer_id = $1", p.customerID.String()).
		Where("remaining_hours > 0").
		OrderExpr("purchase_date, id").
		ForUpdate().
		Scan(ctx)
	if err != nil {
		return nil, classify("lock lots", err)
	}
	return fromLotModels(models)
}

func (p *pgTx) SetRemaining(ctx context.Context, lotID id.LotID, remaining types.Hours) error {
	if remaining.IsNegative() {
		return fmt.Errorf("%w: remaining hours %s is negative", hourbank.ErrInvalidInput, remaining)
	}
	res, err := p.tx.NewUpdate((*lotModel)(nil)).
		Set("remaining_hours = ?", remaining).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", lotID.String()).
		Where("customer_id = ?", p.customerID.String()).
		Exec(ctx)
	if err != nil {
		return classify("set remaining", err)
	}
	return requireRow(res, hourbank.ErrLotNotFound)
}

func (p *pgTx) CreateAppointment(ctx context.Context, a *appointment.Appointment) error {
	if a.CustomerID != p.customerID {
		return fmt.Errorf("%w: appointment belongs to another customer", hourbank.ErrInvalidInput)
	}
	_, err := p.tx.NewInsert(toAppointmentModel(a)).Exec(ctx)
	return classify("create appointment", err)
}

func (p *pgTx) GetAppointment(ctx context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	m := new(appointmentModel)
	err := p.tx.NewSelect(m).
		Where("id = $1", appointmentID.String()).
		Where("customer_id = $2", p.customerID.String()).
		ForUpdate().
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hourbank.ErrAppointmentNotFound
		}
		return nil, classify("get appointment", err)
	}
	return fromAppointmentModel(m)
}

func (p *pgTx) UpdateAppointment(ctx context.Context, a *appointment.Appointment) error {
	res, err := p.tx.NewUpdate(toAppointmentModel(a)).
		Column(appointmentMutableColumns...).
		WherePK().
		Where("customer_id = ?", p.customerID.String()).
		Exec(ctx)
	if err != nil {
		return classify("update appointment", err)
	}
	return requireRow(res, hourbank.ErrAppointmentNotFound)
}
