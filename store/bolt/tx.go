package bolt

import (
	"context"
	"fmt"

	bolt "github.com/boltdb/bolt"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/types"
)

// WithCustomerTx runs fn inside one bolt read-write transaction. Returning
// an error from fn rolls the transaction back.
func (s *Store) WithCustomerTx(ctx context.Context, customerID id.CustomerID, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCustomers).Get([]byte(customerID.String())) == nil {
			return hourbank.ErrCustomerNotFound
		}
		return fn(ctx, &boltTx{tx: tx, customerID: customerID})
	})
}

type boltTx struct {
	tx         *bolt.Tx
	customerID id.CustomerID
}

var _ store.Tx = (*boltTx)(nil)

func (t *boltTx) AvailableLots(_ context.Context) ([]*credit.Lot, error) {
	return customerLots(t.tx, t.customerID, true)
}

func (t *boltTx) SetRemaining(_ context.Context, lotID id.LotID, remaining types.Hours) error {
	if remaining.IsNegative() {
		return fmt.Errorf("%w: remaining hours %s is negative", hourbank.ErrInvalidInput, remaining)
	}
	b := t.tx.Bucket(bucketLots)
	key := []byte(lotID.String())

	var l credit.Lot
	if err := getJSON(b, key, &l, hourbank.ErrLotNotFound); err != nil {
		return err
	}
	if l.CustomerID != t.customerID {
		return hourbank.ErrLotNotFound
	}
	l.RemainingHours = remaining
	return putJSON(b, key, &l)
}

func (t *boltTx) CreateAppointment(_ context.Context, a *appointment.Appointment) error {
	if a.CustomerID != t.customerID {
		return fmt.Errorf("%w: appointment belongs to another customer", hourbank.ErrInvalidInput)
	}
	return insertAppointment(t.tx, a)
}

func (t *boltTx) GetAppointment(_ context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	if err := getJSON(t.tx.Bucket(bucketAppointments), []byte(appointmentID.String()), &a, hourbank.ErrAppointmentNotFound); err != nil {
		return nil, err
	}
	if a.CustomerID != t.customerID {
		return nil, hourbank.ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *boltTx) UpdateAppointment(_ context.Context, a *appointment.Appointment) error {
	return replaceAppointment(t.tx, a, t.customerID)
}
