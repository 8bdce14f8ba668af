package authorization

import (
	"context"
	"errors"
)

// Service answers "may this actor perform this action on this object within
// this organization". Subjects are rendered as "user:<id>", "api_key:<id>"
// or the literal "system".
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)
