package utils

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	actorKey contextKey = "actor"
)

// Role names supplied by the upstream session authority.
const (
	RolePassenger = "passenger"
	RoleConductor = "conductor"
	RoleCompany   = "company"
	RoleAdmin     = "admin"
)

// Actor is the authenticated caller as reported by the session authority.
// CompanyID is set for company staff and conductors.
type Actor struct {
	ID        uuid.UUID
	Role      string
	CompanyID uuid.UUID
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func SetActorContext(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func GetActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok || actor.ID == uuid.Nil {
		return Actor{}, false
	}
	return actor, true
}
