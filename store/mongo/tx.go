package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/types"
)

// WithCustomerTx runs fn in a snapshot transaction whose first write bumps
// the customer's debit_seq. Two transactions for the same customer then
// write-conflict on that document, so only one can commit. The driver
// retries transient conflicts itself before giving up.
func (s *Store) WithCustomerTx(ctx context.Context, customerID id.CustomerID, fn store.TxFunc) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return classify("start session", err)
	}
	defer sess.EndSession(context.Background())

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		res, err := s.db.Collection(colCustomers).UpdateOne(ctx,
			bson.M{"_id": customerID.String()},
			bson.M{"$inc": bson.M{"debit_seq": 1}},
		)
		if err != nil {
			return nil, classify("lock customer", err)
		}
		if res.MatchedCount == 0 {
			return nil, hourbank.ErrCustomerNotFound
		}

		return nil, fn(ctx, &mongoTx{db: s.db, customerID: customerID})
	}, txOpts)
	if err != nil {
		return classify("transaction", err)
	}
	return nil
}

type mongoTx struct {
	db         *mongo.Database
	customerID id.CustomerID
}

var _ store.Tx = (*mongoTx)(nil)

func (t *mongoTx) AvailableLots(ctx context.Context) ([]*credit.Lot, error) {
	return findLots(ctx, t.db, t.customerID, credit.ListOpts{OnlyAvailable: true})
}

func (t *mongoTx) SetRemaining(ctx context.Context, lotID id.LotID, remaining types.Hours) error {
	if remaining.IsNegative() {
		return fmt.Errorf("%w: remaining hours %s is negative", hourbank.ErrInvalidInput, remaining)
	}
	dec, err := toDecimal128(remaining.String())
	if err != nil {
		return err
	}
	res, err := t.db.Collection(colLots).UpdateOne(ctx,
		bson.M{"_id": lotID.String(), "customer_id": t.customerID.String()},
		bson.M{"$set": bson.M{"remaining_hours": dec, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return classify("set remaining", err)
	}
	if res.MatchedCount == 0 {
		return hourbank.ErrLotNotFound
	}
	return nil
}

func (t *mongoTx) CreateAppointment(ctx context.Context, a *appointment.Appointment) error {
	if a.CustomerID != t.customerID {
		return fmt.Errorf("%w: appointment belongs to another customer", hourbank.ErrInvalidInput)
	}
	return insertAppointment(ctx, t.db, a)
}

func (t *mongoTx) GetAppointment(ctx context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	return findAppointment(ctx, t.db, bson.M{"_id": appointmentID.String(), "customer_id": t.customerID.String()})
}

func (t *mongoTx) UpdateAppointment(ctx context.Context, a *appointment.Appointment) error {
	return replaceAppointment(ctx, t.db, bson.M{"_id": a.ID.String(), "customer_id": t.customerID.String()}, a)
}
