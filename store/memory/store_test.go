package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/billbuddy/hourbank"
	"github.com/billbuddy/hourbank/customer"
	"github.com/billbuddy/hourbank/id"
	"github.com/billbuddy/hourbank/store"
	"github.com/billbuddy/hourbank/store/memory"
	"github.com/billbuddy/hourbank/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := memory.New()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestCustomerCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	c := &customer.Customer{ID: id.NewCustomerID(), Name: "Lia", Metadata: map[string]string{"k": "v"}}
	if err := s.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	c.Metadata["k"] = "changed"

	got, err := s.GetCustomer(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if got.Metadata["k"] != "v" {
		t.Errorf("stored metadata aliased caller map: %v", got.Metadata)
	}
}

func TestTxWaitHonorsContext(t *testing.T) {
	s := memory.New()
	c := &customer.Customer{ID: id.NewCustomerID(), Name: "Mia"}
	if err := s.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithCustomerTx(context.Background(), c.ID, func(context.Context, store.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.WithCustomerTx(ctx, c.ID, func(context.Context, store.Tx) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestClosed(t *testing.T) {
	s := memory.New()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, hourbank.ErrStoreClosed) {
		t.Errorf("Ping err = %v, want ErrStoreClosed", err)
	}
	err := s.CreateCustomer(context.Background(), &customer.Customer{ID: id.NewCustomerID(), Name: "x"})
	if !errors.Is(err, hourbank.ErrStoreClosed) {
		t.Errorf("CreateCustomer err = %v, want ErrStoreClosed", err)
	}
}
