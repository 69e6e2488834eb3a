package ports

import (
	"context"

	"github.com/bnema/giveaway-cli/internal/domain"
)

type GiftCatalog interface {
	List(ctx context.Context, page, pageSize int) (domain.CatalogPage, error)
}

// TransferAPI hands an item over to the owners of the given recipient tokens.
// A rejection is reported as *domain.TransferRejectedError.
type TransferAPI interface {
	Send(ctx context.Context, itemID domain.ItemID, recipientTokens []string) error
}

type TransferHistory interface {
	Append(ctx context.Context, record domain.TransferRecord) error
	List(ctx context.Context) ([]domain.TransferRecord, error)
}
