package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// AttributionCode resolves the partner code for a portal user. The
	// code is always derived server side, never trusted from a request.
	AttributionCode(ctx context.Context, userID snowflake.ID) (string, error)
	ProfileByUserID(ctx context.Context, userID snowflake.ID) (*Profile, error)
}

type Repository interface {
	Create(ctx context.Context, profile *Profile) error
	FindByUserID(ctx context.Context, userID snowflake.ID) (*Profile, error)
}
