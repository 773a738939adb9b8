package id_test

import (
	"strings"
	"testing"
	"time"

	"github.com/billbuddy/hourbank/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"CustomerID", id.NewCustomerID, "cust_"},
		{"LotID", id.NewLotID, "lot_"},
		{"AppointmentID", id.NewAppointmentID, "appt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"CustomerID", id.NewCustomerID, id.ParseCustomerID},
		{"LotID", id.NewLotID, id.ParseLotID},
		{"AppointmentID", id.NewAppointmentID, id.ParseAppointmentID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseLotID(id.NewCustomerID().String()); err == nil {
		t.Error("ParseLotID accepted a customer ID")
	}
	if _, err := id.ParseCustomerID(id.NewAppointmentID().String()); err == nil {
		t.Error("ParseCustomerID accepted an appointment ID")
	}
	if _, err := id.ParseAppointmentID(id.NewLotID().String()); err == nil {
		t.Error("ParseAppointmentID accepted a lot ID")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Compare(id.NewLotID()) >= 0 {
		t.Error("nil ID should sort before any generated ID")
	}
}

func TestCompareFollowsCreationOrder(t *testing.T) {
	a := id.NewLotID()
	time.Sleep(2 * time.Millisecond)
	b := id.NewLotID()

	if a.Compare(b) >= 0 {
		t.Errorf("expected %q < %q", a, b)
	}
	if b.Compare(a) <= 0 {
		t.Errorf("expected %q > %q", b, a)
	}
	if a.Compare(a) != 0 {
		t.Error("expected ID to compare equal to itself")
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewCustomerID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewAppointmentID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilScanned id.ID
	if err := nilScanned.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !nilScanned.IsNil() {
		t.Error("expected nil after scan of nil")
	}

	if err := nilScanned.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}
