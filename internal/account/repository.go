package account

import "context"

type Repository interface {
	Create(ctx context.Context, a Account) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
}
