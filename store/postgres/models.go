package postgres

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

// Hours and money travel as decimal text (driver.Valuer / sql.Scanner) so
// no precision passes through float64.

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:hourbank_customers"`

	ID        string            `grove:"id,pk"`
	Name      string            `grove:"name"`
	Email     string            `grove:"email"`
	Phone     string            `grove:"phone"`
	Notes     string            `grove:"notes"`
	Metadata  map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt time.Time         `grove:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at"`
}

func toCustomerModel(c *customer.Customer) *customerModel {
	meta := c.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return &customerModel{
		ID:        c.ID.String(),
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Notes:     c.Notes,
		Metadata:  meta,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	customerID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}
	meta := m.Metadata
	if len(meta) == 0 {
		meta = nil
	}
	return &customer.Customer{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:       customerID,
		Name:     m.Name,
		Email:    m.Email,
		Phone:    m.Phone,
		Notes:    m.Notes,
		Metadata: meta,
	}, nil
}

// ==================== Credit lot models ====================

type lotModel struct {
	grove.BaseModel `grove:"table:hourbank_credit_lots"`

	ID             string          `grove:"id,pk"`
	CustomerID     string          `grove:"customer_id"`
	PurchaseDate   time.Time       `grove:"purchase_date"`
	HoursPurchased types.Hours     `grove:"hours_purchased"`
	RemainingHours types.Hours     `grove:"remaining_hours"`
	PriceAmount    decimal.Decimal `grove:"price_amount"`
	PriceCurrency  string          `grove:"price_currency"`
	Notes          string          `grove:"notes"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toLotModel(l *credit.Lot) *lotModel {
	return &lotModel{
		ID:             l.ID.String(),
		CustomerID:     l.CustomerID.String(),
		PurchaseDate:   l.PurchaseDate,
		HoursPurchased: l.HoursPurchased,
		RemainingHours: l.RemainingHours,
		PriceAmount:    l.PricePaid.Amount,
		PriceCurrency:  l.PricePaid.Currency,
		Notes:          l.Notes,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
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
	return &credit.Lot{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:             lotID,
		CustomerID:     customerID,
		PurchaseDate:   m.PurchaseDate.UTC(),
		HoursPurchased: m.HoursPurchased,
		RemainingHours: m.RemainingHours,
		PricePaid:      types.NewMoney(m.PriceAmount, m.PriceCurrency),
		Notes:          m.Notes,
	}, nil
}

func fromLotModels(ms []lotModel) ([]*credit.Lot, error) {
	lots := make([]*credit.Lot, 0, len(ms))
	for i := range ms {
		l, err := fromLotModel(&ms[i])
		if err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, nil
}

// ==================== Appointment models ====================

type appointmentModel struct {
	grove.BaseModel `grove:"table:hourbank_appointments"`

	ID            string      `grove:"id,pk"`
	CustomerID    string      `grove:"customer_id"`
	ScheduledAt   time.Time   `grove:"scheduled_at"`
	DurationHours types.Hours `grove:"duration_hours"`
	Status        string      `grove:"status"`
	Notes         string      `grove:"notes"`
	CreatedAt     time.Time   `grove:"created_at"`
	UpdatedAt     time.Time   `grove:"updated_at"`
}

// appointmentMutableColumns are rewritten by UpdateAppointment.
var appointmentMutableColumns = []string{"scheduled_at", "duration_hours", "status", "notes", "updated_at"}

func toAppointmentModel(a *appointment.Appointment) *appointmentModel {
	return &appointmentModel{
		ID:            a.ID.String(),
		CustomerID:    a.CustomerID.String(),
		ScheduledAt:   a.ScheduledAt,
		DurationHours: a.Duration,
		Status:        string(a.Status),
		Notes:         a.Notes,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func fromAppointmentModel(m *appointmentModel) (*appointment.Appointment, error) {
	appointmentID, err := id.ParseAppointmentID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	return &appointment.Appointment{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          appointmentID,
		CustomerID:  customerID,
		ScheduledAt: m.ScheduledAt.UTC(),
		Duration:    m.DurationHours,
		Status:      appointment.Status(m.Status),
		Notes:       m.Notes,
	}, nil
}
