package authorization

import "context"

// Service decides whether an actor may perform an action on an object
// within a company. Actors are "system" or "user:{id}".
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
	AssignRole(ctx context.Context, actor string, orgID string, role string) error
	RoleOf(ctx context.Context, actor string, orgID string) (string, error)
}
