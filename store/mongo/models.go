package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

// Hours and amounts are stored as Decimal128 so server-side comparisons
// ($gt on remaining_hours) stay numeric and exact.

var zeroDecimal = mustDecimal128("0")

func toDecimal128(s string) (bson.Decimal128, error) {
	d, err := bson.ParseDecimal128(s)
	if err != nil {
		return bson.Decimal128{}, fmt.Errorf("hourbank/mongo: encode decimal %q: %w", s, err)
	}
	return d, nil
}

func mustDecimal128(s string) bson.Decimal128 {
	d, err := toDecimal128(s)
	if err != nil {
		panic(err)
	}
	return d
}

func hoursFrom(d bson.Decimal128) (types.Hours, error) { return types.ParseHours(d.String()) }

// ==================== Customer models ====================

type customerModel struct {
	ID        string            `bson:"_id"`
	Name      string            `bson:"name"`
	Email     string            `bson:"email"`
	Phone     string            `bson:"phone"`
	Notes     string            `bson:"notes"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
	DebitSeq  int64             `bson:"debit_seq"`
	CreatedAt time.Time         `bson:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

func toCustomerModel(c *customer.Customer) *customerModel {
	return &customerModel{
		ID:        c.ID.String(),
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Notes:     c.Notes,
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	customerID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}
	return &customer.Customer{
		Entity:   types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:       customerID,
		Name:     m.Name,
		Email:    m.Email,
		Phone:    m.Phone,
		Notes:    m.Notes,
		Metadata: m.Metadata,
	}, nil
}

// ==================== Credit lot models ====================

type lotModel struct {
	ID             string          `bson:"_id"`
	CustomerID     string          `bson:"customer_id"`
	PurchaseDate   time.Time       `bson:"purchase_date"`
	HoursPurchased bson.Decimal128 `bson:"hours_purchased"`
	RemainingHours bson.Decimal128 `bson:"remaining_hours"`
	PriceAmount    bson.Decimal128 `bson:"price_amount"`
	PriceCurrency  string          `bson:"price_currency"`
	Notes          string          `bson:"notes"`
	CreatedAt      time.Time       `bson:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at"`
}

func toLotModel(l *credit.Lot) (*lotModel, error) {
	purchased, err := toDecimal128(l.HoursPurchased.String())
	if err != nil {
		return nil, err
	}
	remaining, err := toDecimal128(l.RemainingHours.String())
	if err != nil {
		return nil, err
	}
	price, err := toDecimal128(l.PricePaid.Amount.String())
	if err != nil {
		return nil, err
	}
	return &lotModel{
		ID:             l.ID.String(),
		CustomerID:     l.CustomerID.String(),
		PurchaseDate:   l.PurchaseDate.UTC(),
		HoursPurchased: purchased,
		RemainingHours: remaining,
		PriceAmount:    price,
		PriceCurrency:  l.PricePaid.Currency,
		Notes:          l.Notes,
		CreatedAt:      l.CreatedAt.UTC(),
		UpdatedAt:      l.UpdatedAt.UTC(),
	}, nil
}

func fromLotModel(m *lotModel) (*credit.Lot, error) {
	lotID, err := id.ParseLotID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	purchased, err := hoursFrom(m.HoursPurchased)
	if err != nil {
		return nil, err
	}
	remaining, err := hoursFrom(m.RemainingHours)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(m.PriceAmount.String())
	if err != nil {
		return nil, err
	}
	return &credit.Lot{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:             lotID,
		CustomerID:     customerID,
		PurchaseDate:   m.PurchaseDate.UTC(),
		HoursPurchased: purchased,
		RemainingHours: remaining,
		PricePaid:      types.NewMoney(amount, m.PriceCurrency),
		Notes:          m.Notes,
	}, nil
}

// ==================== Appointment models ====================

type appointmentModel struct {
	ID          string          `bson:"_id"`
	CustomerID  string          `bson:"customer_id"`
	ScheduledAt time.Time       `bson:"scheduled_at"`
	Duration    bson.Decimal128 `bson:"duration_hours"`
	Status      string          `bson:"status"`
	Notes       string          `bson:"notes"`
	CreatedAt   time.Time       `bson:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at"`
}

func toAppointmentModel(a *appointment.Appointment) (*appointmentModel, error) {
	duration, err := toDecimal128(a.Duration.String())
	if err != nil {
		return nil, err
	}
	return &appointmentModel{
		ID:          a.ID.String(),
		CustomerID:  a.CustomerID.String(),
		ScheduledAt: a.ScheduledAt.UTC(),
		Duration:    duration,
		Status:      string(a.Status),
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}, nil
}

func fromAppointmentModel(m *appointmentModel) (*appointment.Appointment, error) {
	apptID, err := id.ParseAppointmentID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	duration, err := hoursFrom(m.Duration)
	if err != nil {
		return nil, err
	}
	return &appointment.Appointment{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:          apptID,
		CustomerID:  customerID,
		ScheduledAt: m.ScheduledAt.UTC(),
		Duration:    duration,
		Status:      appointment.Status(m.Status),
		Notes:       m.Notes,
	}, nil
}
