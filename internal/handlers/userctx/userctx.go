package userctx

import (
	"context"

	"github.com/nkiryanov/payouts/internal/models"
)

type ctxKey string

const actorKey ctxKey = "actor"

// Create a new context with the authenticated actor
func New(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// Extract the actor from the context
func FromContext(ctx context.Context) (models.Actor, bool) {
	a, ok := ctx.Value(actorKey).(models.Actor)
	return a, ok
}
