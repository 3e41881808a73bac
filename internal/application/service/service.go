package service

import (
	"context"
	"errors"
	"strings"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/rbac"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// loadActor resolves the caller; a missing or unknown id is Unauthenticated
func loadActor(ctx context.Context, users port.UserRepository, actorID string) (*entity.User, rbac.Subject, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, rbac.Subject{}, apperror.New(apperror.KindUnauthenticated, "no actor on request")
	}
	actor, err := users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, apperror.NotFound) {
			return nil, rbac.Subject{}, apperror.New(apperror.KindUnauthenticated, "actor %s does not resolve", actorID)
		}
		return nil, rbac.Subject{}, apperror.Persistence(err, "load actor")
	}
	return actor, rbac.SubjectFor(actor), nil
}

func forbidden(actor *entity.User, what string) error {
	return apperror.New(apperror.KindForbidden, "%s may not %s", actor.Username, what)
}
