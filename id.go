package hourbank

import "github.com/billbuddy/hourbank/id"

// ID is the primary identifier type for all hourbank entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
