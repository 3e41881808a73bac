package service

import (
	"context"
	"time"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/rbac"
	"github.com/garyjia/invoice-approval/pkg/keylock"
)

// Delegation is the read view of a user's delegation record
type Delegation struct {
	UserID     string     `json:"userId"`
	DelegateID string     `json:"delegateId,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Live       bool       `json:"live"`
}

// DelegationService maintains the delegation directory.
// Expired records are left in place and read as not live.
type DelegationService interface {
	SetDelegation(ctx context.Context, actorID, userID, delegateID string, durationDays int) (*Delegation, error)
	ClearDelegation(ctx context.Context, actorID, userID string) error
	IsLive(ctx context.Context, userID string) (bool, error)
	Get(ctx context.Context, actorID, userID string) (*Delegation, error)
}

type delegationServiceImpl struct {
	userRepo  port.UserRepository
	txManager port.TransactionManager
	evaluator *rbac.Evaluator
	locks     *keylock.Locker
	logger    Logger
	now       func() time.Time
}

// NewDelegationService creates a new DelegationService
func NewDelegationService(
	userRepo port.UserRepository,
	txManager port.TransactionManager,
	evaluator *rbac.Evaluator,
	logger Logger,
	now func() time.Time,
) DelegationService {
	if now == nil {
		now = time.Now
	}
	if evaluator == nil {
		evaluator = rbac.NewEvaluator(nil)
	}
	return &delegationServiceImpl{
		userRepo:  userRepo,
		txManager: txManager,
		evaluator: evaluator,
		locks:     keylock.New(),
		logger:    logger,
		now:       now,
	}
}

// authorizeOwnRecord allows only a project manager acting on their own record
func (s *delegationServiceImpl) authorizeOwnRecord(ctx context.Context, actorID, userID string) (*entity.User, error) {
	actor, subject, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != userID || subject.Role != rbac.RoleProjectManager {
		return nil, forbidden(actor, "change delegation for "+userID)
	}
	return actor, nil
}

// SetDelegation points userID's authority at delegateID for durationDays
func (s *delegationServiceImpl) SetDelegation(ctx context.Context, actorID, userID, delegateID string, durationDays int) (*Delegation, error) {
	actor, err := s.authorizeOwnRecord(ctx, actorID, userID)
	if err != nil {
		return nil, err
	}
	if durationDays < 1 {
		return nil, apperror.New(apperror.KindInvalidArgument, "durationDays must be at least 1, got %d", durationDays)
	}
	if delegateID == "" || delegateID == userID {
		return nil, apperror.New(apperror.KindInvalidArgument, "a user cannot delegate to themselves")
	}

	release, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindPersistenceFailure, err, "acquire user lock")
	}
	defer release()

	var updated *entity.User
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		delegate, err := s.userRepo.GetByID(txCtx, delegateID)
		if err != nil {
			return apperror.Persistence(err, "load delegate")
		}
		if role := rbac.Normalize(delegate.Role); !role.IsCanonical() || role == rbac.RoleVendor {
			return apperror.New(apperror.KindInvalidArgument, "%s cannot act as a delegate with role %q", delegateID, delegate.Role)
		}

		expires := s.now().Add(time.Duration(durationDays) * 24 * time.Hour)
		u, err := s.userRepo.Update(txCtx, userID, entity.UserPatch{
			DelegatedTo:         &delegateID,
			DelegationExpiresAt: &expires,
		})
		if err != nil {
			return apperror.Persistence(err, "update delegation")
		}
		updated = u
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to set delegation", "user_id", userID, "delegate_id", delegateID, "error", err)
		return nil, err
	}

	s.logger.Info("Delegation set",
		"user_id", actor.ID,
		"delegate_id", delegateID,
		"expires_at", updated.DelegationExpiresAt,
	)
	return s.view(updated), nil
}

// ClearDelegation removes userID's delegation; clearing an absent one succeeds
func (s *delegationServiceImpl) ClearDelegation(ctx context.Context, actorID, userID string) error {
	if _, err := s.authorizeOwnRecord(ctx, actorID, userID); err != nil {
		return err
	}

	release, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return apperror.Wrap(apperror.KindPersistenceFailure, err, "acquire user lock")
	}
	defer release()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.userRepo.Update(txCtx, userID, entity.UserPatch{ClearDelegation: true}); err != nil {
			return apperror.Persistence(err, "clear delegation")
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to clear delegation", "user_id", userID, "error", err)
		return err
	}

	s.logger.Info("Delegation cleared", "user_id", userID)
	return nil
}

// IsLive evaluates userID's delegation against the current time
func (s *delegationServiceImpl) IsLive(ctx context.Context, userID string) (bool, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, apperror.Persistence(err, "load user")
	}
	return u.DelegationLive(s.now()), nil
}

// Get returns userID's delegation record to the user themselves or a user manager
func (s *delegationServiceImpl) Get(ctx context.Context, actorID, userID string) (*Delegation, error) {
	actor, subject, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID != userID && !s.evaluator.Allowed(subject, rbac.PermManageUsers, nil) {
		return nil, forbidden(actor, "view delegation for "+userID)
	}

	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.Persistence(err, "load user")
	}
	return s.view(u), nil
}

func (s *delegationServiceImpl) view(u *entity.User) *Delegation {
	d := &Delegation{UserID: u.ID, ExpiresAt: u.DelegationExpiresAt, Live: u.DelegationLive(s.now())}
	if u.DelegatedTo != nil {
		d.DelegateID = *u.DelegatedTo
	}
	return d
}
