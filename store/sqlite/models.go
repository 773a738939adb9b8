package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/billbuddy/hourbank/appointment"
	"github.com/billbuddy/hourbank/credit"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/types"
)

// Times are stored as fixed-width UTC text so string order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Hours and money are stored as decimal text.
const availableCond = `CAST(remaining_hours AS REAL) > 0`

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("hourbank/sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

type timeField struct {
	raw string
	dst *time.Time
}

func parseTimes(fields ...timeField) error {
	for _, f := range fields {
		t, err := parseTime(f.raw)
		if err != nil {
			return err
		}
		*f.dst = t
	}
	return nil
}

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:hourbank_customers"`

	ID        string `grove:"id,pk"`
	Name      string `grove:"name"`
	Email     string `grove:"email"`
	Phone     string `grove:"phone"`
	Notes     string `grove:"notes"`
	Metadata  string `grove:"metadata"`
	CreatedAt string `grove:"created_at"`
	UpdatedAt string `grove:"updated_at"`
}

func toCustomerModel(c *customer.Customer) (*customerModel, error) {
	meta := "{}"
	if len(c.Metadata) > 0 {
		b, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("hourbank/sqlite: encode metadata: %w", err)
		}
		meta = string(b)
	}
	return &customerModel{
		ID:        c.ID.String(),
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Notes:     c.Notes,
		Metadata:  meta,
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}, nil
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	customerID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}
	c := &customer.Customer{
		ID:    customerID,
		Name:  m.Name,
		Email: m.Email,
		Phone: m.Phone,
		Notes: m.Notes,
	}
	if m.Metadata != "" && m.Metadata != "{}" {
		if err := json.Unmarshal([]byte(m.Metadata), &c.Metadata); err != nil {
			return nil, fmt.Errorf("hourbank/sqlite: decode metadata: %w", err)
		}
	}
	if err := parseTimes(timeField{m.CreatedAt, &c.CreatedAt}, timeField{m.UpdatedAt, &c.UpdatedAt}); err != nil {
		return nil, err
	}
	return c, nil
}

// ==================== Credit lot models ====================

type lotModel struct {
	grove.BaseModel `grove:"table:hourbank_credit_lots"`

	ID             string          `grove:"id,pk"`
	CustomerID     string          `grove:"customer_id"`
	PurchaseDate   string          `grove:"purchase_date"`
	HoursPurchased types.Hours     `grove:"hours_purchased"`
	RemainingHours types.Hours     `grove:"remaining_hours"`
	PriceAmount    decimal.Decimal `grove:"price_amount"`
	PriceCurrency  string          `grove:"price_currency"`
	Notes          string          `grove:"notes"`
	CreatedAt      string          `grove:"created_at"`
	UpdatedAt      string          `grove:"updated_at"`
}

func toLotModel(l *credit.Lot) *lotModel {
	return &lotModel{
		ID:             l.ID.String(),
		CustomerID:     l.CustomerID.String(),
		PurchaseDate:   formatTime(l.PurchaseDate),
		HoursPurchased: l.HoursPurchased,
		RemainingHours: l.RemainingHours,
		PriceAmount:    l.PricePaid.Amount,
		PriceCurrency:  l.PricePaid.Currency,
		Notes:          l.Notes,
		CreatedAt:      formatTime(l.CreatedAt),
		UpdatedAt:      formatTime(l.UpdatedAt),
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
	l := &credit.Lot{
		ID:             lotID,
		CustomerID:     customerID,
		HoursPurchased: m.HoursPurchased,
		RemainingHours: m.RemainingHours,
		PricePaid:      types.NewMoney(m.PriceAmount, m.PriceCurrency),
		Notes:          m.Notes,
	}
	if err := parseTimes(
		timeField{m.PurchaseDate, &l.PurchaseDate},
		timeField{m.CreatedAt, &l.CreatedAt},
		timeField{m.UpdatedAt, &l.UpdatedAt},
	); err != nil {
		return nil, err
	}
	return l, nil
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
	ScheduledAt   string      `grove:"scheduled_at"`
	DurationHours types.Hours `grove:"duration_hours"`
	Status        string      `grove:"status"`
	Notes         string      `grove:"notes"`
	CreatedAt     string      `grove:"created_at"`
	UpdatedAt     string      `grove:"updated_at"`
}

// appointmentMutableColumns are rewritten by UpdateAppointment.
var appointmentMutableColumns = []string{"scheduled_at", "duration_hours", "status", "notes", "updated_at"}

func toAppointmentModel(a *appointment.Appointment) *appointmentModel {
	return &appointmentModel{
		ID:            a.ID.String(),
		CustomerID:    a.CustomerID.String(),
		ScheduledAt:   formatTime(a.ScheduledAt),
		DurationHours: a.Duration,
		Status:        string(a.Status),
		Notes:         a.Notes,
		CreatedAt:     formatTime(a.CreatedAt),
		UpdatedAt:     formatTime(a.UpdatedAt),
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
	a := &appointment.Appointment{
		ID:         appointmentID,
		CustomerID: customerID,
		Duration:   m.DurationHours,
		Status:     appointment.Status(m.Status),
		Notes:      m.Notes,
	}
	if err := parseTimes(
		timeField{m.ScheduledAt, &a.ScheduledAt},
		timeField{m.CreatedAt, &a.CreatedAt},
		timeField{m.UpdatedAt, &a.UpdatedAt},
	); err != nil {
		return nil, err
	}
	return a, nil
}

func fromAppointmentModels(ms []appointmentModel) ([]*appointment.Appointment, error) {
	result := make([]*appointment.Appointment, 0, len(ms))
	for i := range ms {
		a, err := fromAppointmentModel(&ms[i])
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}
