// Package mongo implements store.Store on MongoDB. Customer transactions
// need a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"
)

// Collection name constants.
const (
	colCustomers    = "hourbank_customers"
	colLots         = "hourbank_credit_lots"
	colAppointments = "hourbank_appointments"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a MongoDB store using database dbName on client.
func New(client *mongo.Client, dbName string) *Store {
	return &Store{
		client: client,
		db:     client.Database(dbName),
	}
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all hourbank collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("hourbank/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	_, err := s.db.Collection(colCustomers).InsertOne(ctx, toCustomerModel(c))
	return classify("create customer", err)
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	var m customerModel
	err := s.db.Collection(colCustomers).FindOne(ctx, bson.M{"_id": customerID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hourbank.ErrCustomerNotFound
		}
		return nil, classify("get customer", err)
	}
	return fromCustomerModel(&m)
}

func (s *Store) ListCustomers(ctx context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	findOpts := paged(options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}), opts.Limit, opts.Offset)
	cur, err := s.db.Collection(colCustomers).Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, classify("list customers", err)
	}

	var models []customerModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, classify("list customers", err)
	}
	return convertAll(models, fromCustomerModel)
}

func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	m := toCustomerModel(c)
	res, err := s.db.Collection(colCustomers).UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{
			"name":       m.Name,
			"email":      m.Email,
			"phone":      m.Phone,
			"notes":      m.Notes,
			"metadata":   m.Metadata,
			"updated_at": m.UpdatedAt,
		}},
	)
	if err != nil {
		return classify("update customer", err)
	}
	if res.MatchedCount == 0 {
		return hourbank.ErrCustomerNotFound
	}
	return nil
}

// ==================== Credit Store ====================

func (s *Store) CreateLot(ctx context.Context, l *credit.Lot) error {
	// Mongo has no foreign keys.
	if _, err := s.GetCustomer(ctx, l.CustomerID); err != nil {
		return err
	}
	m, err := toLotModel(l)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colLots).InsertOne(ctx, m)
	return classify("create lot", err)
}

func (s *Store) GetLot(ctx context.Context, lotID id.LotID) (*credit.Lot, error) {
	var m lotModel
	err := s.db.Collection(colLots).FindOne(ctx, bson.M{"_id": lotID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hourbank.ErrLotNotFound
		}
		return nil, classify("get lot", err)
	}
	return fromLotModel(&m)
}

func (s *Store) ListLots(ctx context.Context, customerID id.CustomerID, opts credit.ListOpts) ([]*credit.Lot, error) {
	return findLots(ctx, s.db, customerID, opts)
}

func findLots(ctx context.Context, db *mongo.Database, customerID id.CustomerID, opts credit.ListOpts) ([]*credit.Lot, error) {
	filter := bson.M{"customer_id": customerID.String()}
	if opts.OnlyAvailable {
		filter["remaining_hours"] = bson.M{"$gt": zeroDecimal}
	}
	findOpts := paged(options.Find().SetSort(bson.D{{Key: "purchase_date", Value: 1}, {Key: "_id", Value: 1}}), opts.Limit, opts.Offset)

	cur, err := db.Collection(colLots).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, classify("list lots", err)
	}

	var models []lotModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, classify("list lots", err)
	}
	return convertAll(models, fromLotModel)
}

// ==================== Appointment Store ====================

func (s *Store) CreateAppointment(ctx context.Context, a *appointment.Appointment) error {
	if _, err := s.GetCustomer(ctx, a.CustomerID); err != nil {
		return err
	}
	return insertAppointment(ctx, s.db, a)
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	return findAppointment(ctx, s.db, bson.M{"_id": appointmentID.String()})
}

func (s *Store) ListAppointments(ctx context.Context, customerID id.CustomerID, opts appointment.ListOpts) ([]*appointment.Appointment, error) {
	filter := bson.M{"customer_id": customerID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	window := bson.M{}
	if !opts.Start.IsZero() {
		window["$gte"] = opts.Start.UTC()
	}
	if !opts.End.IsZero() {
		window["$lt"] = opts.End.UTC()
	}
	if len(window) > 0 {
		filter["scheduled_at"] = window
	}

	findOpts := paged(options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: -1}, {Key: "_id", Value: -1}}), opts.Limit, opts.Offset)
	cur, err := s.db.Collection(colAppointments).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, classify("list appointments", err)
	}

	var models []appointmentModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, classify("list appointments", err)
	}
	return convertAll(models, fromAppointmentModel)
}

func (s *Store) UpdateAppointment(ctx context.Context, a *appointment.Appointment) error {
	return replaceAppointment(ctx, s.db, bson.M{"_id": a.ID.String()}, a)
}

func insertAppointment(ctx context.Context, db *mongo.Database, a *appointment.Appointment) error {
	m, err := toAppointmentModel(a)
	if err != nil {
		return err
	}
	_, err = db.Collection(colAppointments).InsertOne(ctx, m)
	return classify("create appointment", err)
}

func findAppointment(ctx context.Context, db *mongo.Database, filter bson.M) (*appointment.Appointment, error) {
	var m appointmentModel
	err := db.Collection(colAppointments).FindOne(ctx, filter).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hourbank.ErrAppointmentNotFound
		}
		return nil, classify("get appointment", err)
	}
	return fromAppointmentModel(&m)
}

func replaceAppointment(ctx context.Context, db *mongo.Database, filter bson.M, a *appointment.Appointment) error {
	m, err := toAppointmentModel(a)
	if err != nil {
		return err
	}
	res, err := db.Collection(colAppointments).ReplaceOne(ctx, filter, m)
	if err != nil {
		return classify("update appointment", err)
	}
	if res.MatchedCount == 0 {
		return hourbank.ErrAppointmentNotFound
	}
	return nil
}

// ==================== Helpers ====================

func paged(o *options.FindOptionsBuilder, limit, offset int) *options.FindOptionsBuilder {
	if limit > 0 {
		o.SetLimit(int64(limit))
	}
	if offset > 0 {
		o.SetSkip(int64(offset))
	}
	return o
}

func convertAll[M, T any](models []M, from func(*M) (*T, error)) ([]*T, error) {
	result := make([]*T, 0, len(models))
	for i := range models {
		v, err := from(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// writeConflict is the server code for a concurrent write to the same
// document inside a transaction.
const writeConflict = 112

// classify maps driver errors onto hourbank sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return hourbank.ErrAlreadyExists
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(writeConflict) || se.HasErrorLabel("TransientTransactionError")) {
		return fmt.Errorf("%w: %s: %w", hourbank.ErrStorageConflict, op, err)
	}
	return fmt.Errorf("hourbank/mongo: %s: %w", op, err)
}

// migrationIndexes returns the index definitions for all hourbank collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCustomers: {
			{Keys: bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colLots: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "purchase_date", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colAppointments: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "scheduled_at", Value: -1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}
}
