package bidbank

import "github.com/xraph/bidbank/id"

// ID is the identifier type for records and registrations minted by the bank.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
