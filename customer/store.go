package customer

import (
	"context"

	"github.com/billbuddy/hourbank/id"
)

type Store interface {
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, customerID id.CustomerID) (*Customer, error)
	ListCustomers(ctx context.Context, opts ListOpts) ([]*Customer, error)
	UpdateCustomer(ctx context.Context, c *Customer) error
}

// ListOpts pages through customers ordered by name.
type ListOpts struct {
	Limit  int
	Offset int
}
