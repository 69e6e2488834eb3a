package domain

import (
	"strings"
	"time"
)

type ItemID string

type TransferableItem struct {
	ID        ItemID `validate:"required"`
	Name      string
	Brand     string
	ExpiresAt time.Time
}

func (i TransferableItem) Validate() error {
	if strings.TrimSpace(string(i.ID)) == "" {
		return validationError("id is required")
	}

	return validateStruct(i)
}

// IsZero reports whether the item carries no data at all.
func (i TransferableItem) IsZero() bool {
	return i.ID == "" && i.Name == "" && i.Brand == "" && i.ExpiresAt.IsZero()
}

type CatalogPage struct {
	Items       []TransferableItem
	HasNextPage bool
	NextPage    int
}

type TransferRecord struct {
	ID       string
	ItemID   ItemID
	ItemName string
	PeerID   PeerID
	PeerName string
	SentAt   time.Time
}
