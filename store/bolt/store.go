// Package bolt implements store.Store on an embedded BoltDB file.
//
// Entities are stored as JSON under their ID. Lots and appointments are
// also indexed by customer (key "<customer_id>/<entity_id>") so a
// customer's records are one cursor prefix scan away.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"
)

var (
	bucketCustomers       = []byte("customers")
	bucketLots            = []byte("credit_lots")
	bucketAppointments    = []byte("appointments")
	bucketLotsByCustomer  = []byte("credit_lots_by_customer")
	bucketApptsByCustomer = []byte("appointments_by_customer")
	allBuckets            = [][]byte{bucketCustomers, bucketLots, bucketAppointments, bucketLotsByCustomer, bucketApptsByCustomer}
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on BoltDB. Bolt allows one read-write
// transaction at a time, so customer transactions are serialized by
// construction.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("hourbank/bolt: open: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying database.
func (s *Store) DB() *bolt.DB { return s.db }

// Migrate creates the buckets.
func (s *Store) Migrate(_ context.Context) error {
	return s.update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("hourbank/bolt: create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	return s.view(func(*bolt.Tx) error { return nil })
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(_ context.Context, c *customer.Customer) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCustomers)
		key := []byte(c.ID.String())
		if b.Get(key) != nil {
			return hourbank.ErrAlreadyExists
		}
		return putJSON(b, key, c)
	})
}

func (s *Store) GetCustomer(_ context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	var c customer.Customer
	err := s.view(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketCustomers), []byte(customerID.String()), &c, hourbank.ErrCustomerNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(_ context.Context, opts customer.ListOpts) ([]*customer.Customer, error) {
	var result []*customer.Customer
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCustomers).ForEach(func(_, v []byte) error {
			var c customer.Customer
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			result = append(result, &c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(result, customer.CompareByName)
	return store.Page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) UpdateCustomer(_ context.Context, c *customer.Customer) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCustomers)
		key := []byte(c.ID.String())
		if b.Get(key) == nil {
			return hourbank.ErrCustomerNotFound
		}
		return putJSON(b, key, c)
	})
}

// ==================== Credit Store ====================

func (s *Store) CreateLot(_ context.Context, l *credit.Lot) error {
	return s.update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCustomers).Get([]byte(l.CustomerID.String())) == nil {
			return hourbank.ErrCustomerNotFound
		}
		b := tx.Bucket(bucketLots)
		key := []byte(l.ID.String())
		if b.Get(key) != nil {
			return hourbank.ErrAlreadyExists
		}
		if err := putJSON(b, key, l); err != nil {
			return err
		}
		return tx.Bucket(bucketLotsByCustomer).Put(indexKey(l.CustomerID, l.ID), nil)
	})
}

func (s *Store) GetLot(_ context.Context, lotID id.LotID) (*credit.Lot, error) {
	var l credit.Lot
	err := s.view(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketLots), []byte(lotID.String()), &l, hourbank.ErrLotNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) ListLots(_ context.Context, customerID id.CustomerID, opts credit.ListOpts) ([]*credit.Lot, error) {
	var result []*credit.Lot
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		result, err = customerLots(tx, customerID, opts.OnlyAvailable)
		return err
	})
	if err != nil {
		return nil, err
	}
	return store.Page(result, opts.Limit, opts.Offset), nil
}

func customerLots(tx *bolt.Tx, customerID id.CustomerID, onlyAvailable bool) ([]*credit.Lot, error) {
	lots := tx.Bucket(bucketLots)
	var result []*credit.Lot
	err := scanIndex(tx.Bucket(bucketLotsByCustomer), customerID, func(lotKey []byte) error {
		var l credit.Lot
		if err := getJSON(lots, lotKey, &l, hourbank.ErrLotNotFound); err != nil {
			return err
		}
		if !onlyAvailable || l.Available() {
			result = append(result, &l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	credit.SortFIFO(result)
	return result, nil
}

// ==================== Appointment Store ====================

func (s *Store) CreateAppointment(_ context.Context, a *appointment.Appointment) error {
	return s.update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCustomers).Get([]byte(a.CustomerID.String())) == nil {
			return hourbank.ErrCustomerNotFound
		}
		return insertAppointment(tx, a)
	})
}

func (s *Store) GetAppointment(_ context.Context, appointmentID id.AppointmentID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := s.view(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketAppointments), []byte(appointmentID.String()), &a, hourbank.ErrAppointmentNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAppointments(_ context.Context, customerID id.CustomerID, opts appointment.ListOpts) ([]*appointment.Appointment, error) {
	var result []*appointment.Appointment
	err := s.view(func(tx *bolt.Tx) error {
		appts := tx.Bucket(bucketAppointments)
		return scanIndex(tx.Bucket(bucketApptsByCustomer), customerID, func(key []byte) error {
			var a appointment.Appointment
			if err := getJSON(appts, key, &a, hourbank.ErrAppointmentNotFound); err != nil {
				return err
			}
			if opts.Match(&a) {
				result = append(result, &a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(result, appointment.CompareNewestFirst)
	return store.Page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) UpdateAppointment(_ context.Context, a *appointment.Appointment) error {
	return s.update(func(tx *bolt.Tx) error {
		return replaceAppointment(tx, a, id.Nil)
	})
}

func insertAppointment(tx *bolt.Tx, a *appointment.Appointment) error {
	b := tx.Bucket(bucketAppointments)
	key := []byte(a.ID.String())
	if b.Get(key) != nil {
		return hourbank.ErrAlreadyExists
	}
	if err := putJSON(b, key, a); err != nil {
		return err
	}
	return tx.Bucket(bucketApptsByCustomer).Put(indexKey(a.CustomerID, a.ID), nil)
}

// replaceAppointment overwrites a stored appointment. A non-nil owner
// restricts the write to that customer's appointments.
func replaceAppointment(tx *bolt.Tx, a *appointment.Appointment, owner id.CustomerID) error {
	b := tx.Bucket(bucketAppointments)
	key := []byte(a.ID.String())

	var current appointment.Appointment
	if err := getJSON(b, key, &current, hourbank.ErrAppointmentNotFound); err != nil {
		return err
	}
	if !owner.IsNil() && current.CustomerID != owner {
		return hourbank.ErrAppointmentNotFound
	}
	if a.CustomerID != current.CustomerID {
		return fmt.Errorf("%w: appointment customer cannot change", hourbank.ErrInvalidInput)
	}
	return putJSON(b, key, a)
}

// ==================== Helpers ====================

func (s *Store) view(fn func(*bolt.Tx) error) error {
	return classify(s.db.View(fn))
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	return classify(s.db.Update(fn))
}

func classify(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return hourbank.ErrStoreClosed
	}
	return err
}

func indexKey(customerID, entityID id.ID) []byte {
	return []byte(customerID.String() + "/" + entityID.String())
}

// scanIndex calls fn with the entity key of every index entry under
// customerID.
func scanIndex(b *bolt.Bucket, customerID id.CustomerID, fn func(entityKey []byte) error) error {
	prefix := []byte(customerID.String() + "/")
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		if err := fn(k[len(prefix):]); err != nil {
			return err
		}
	}
	return nil
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("hourbank/bolt: encode %s: %w", key, err)
	}
	return b.Put(key, data)
}

func getJSON(b *bolt.Bucket, key []byte, v any, notFound error) error {
	data := b.Get(key)
	if data == nil {
		return notFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("hourbank/bolt: decode %s: %w", key, err)
	}
	return nil
}
