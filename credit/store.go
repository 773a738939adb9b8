package credit

import (
	"context"

	"github.com/billbuddy/hourbank/id"
)

type Store interface {
	CreateLot(ctx context.Context, l *Lot) error
	GetLot(ctx context.Context, lotID id.LotID) (*Lot, error)
	ListLots(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Lot, error)
}

// ListOpts filters a customer's lots. Results are always in FIFO order.
type ListOpts struct {
	OnlyAvailable bool
	Limit         int
	Offset        int
}
