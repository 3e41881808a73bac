package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/rbac"
	"github.com/garyjia/invoice-approval/pkg/utils"
)

// CreateUserRequest carries the fields for a new user
type CreateUserRequest struct {
	Username         string
	Email            string
	Role             string
	AssignedProjects []string
}

// Capabilities describes what the caller could do, for UI affordances only.
// Every mutation is still authorized against the concrete invoice.
type Capabilities struct {
	UserID                string   `json:"userId"`
	Role                  string   `json:"role"`
	Permissions           []string `json:"permissions"`
	CanPotentiallyApprove bool     `json:"canPotentiallyApprove"`
	CanFinalizePayment    bool     `json:"canFinalizePayment"`
	CanSubmitInvoice      bool     `json:"canSubmitInvoice"`
	CanViewAuditLogs      bool     `json:"canViewAuditLogs"`
	CanManageUsers        bool     `json:"canManageUsers"`
	ActingFor             []string `json:"actingFor,omitempty"`
}

// UserService manages user records
type UserService interface {
	Create(ctx context.Context, actorID string, req CreateUserRequest) (*entity.User, error)
	AssignProjects(ctx context.Context, actorID, userID string, projects []string) (*entity.User, error)
	Get(ctx context.Context, actorID, userID string) (*entity.User, error)
	Capabilities(ctx context.Context, actorID string) (*Capabilities, error)

	// EnsureAdmin creates the bootstrap admin unless a user with that username exists
	EnsureAdmin(ctx context.Context, username, email string) (*entity.User, error)
}

type userServiceImpl struct {
	userRepo  port.UserRepository
	evaluator *rbac.Evaluator
	logger    Logger
	now       func() time.Time
}

// NewUserService creates a new UserService
func NewUserService(userRepo port.UserRepository, evaluator *rbac.Evaluator, logger Logger, now func() time.Time) UserService {
	if evaluator == nil {
		evaluator = rbac.NewEvaluator(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &userServiceImpl{
		userRepo:  userRepo,
		evaluator: evaluator,
		logger:    logger,
		now:       now,
	}
}

func (s *userServiceImpl) requireManager(ctx context.Context, actorID string) (*entity.User, error) {
	actor, subject, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if !s.evaluator.Allowed(subject, rbac.PermManageUsers, nil) {
		return nil, forbidden(actor, "manage users")
	}
	return actor, nil
}

func cleanProjects(projects []string) ([]string, error) {
	seen := make(map[string]bool, len(projects))
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		p = strings.TrimSpace(p)
		if err := utils.ValidateProjectKey(p); err != nil {
			return nil, apperror.Wrap(apperror.KindInvalidArgument, err, "invalid project %q", p)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *userServiceImpl) create(ctx context.Context, req CreateUserRequest) (*entity.User, error) {
	username := utils.SanitizeString(req.Username)
	if username == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "username is required")
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidArgument, err, "invalid email")
	}
	role := rbac.Normalize(req.Role)
	if !role.IsCanonical() {
		return nil, apperror.New(apperror.KindInvalidArgument, "unknown role %q", req.Role)
	}
	projects, err := cleanProjects(req.AssignedProjects)
	if err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return nil, apperror.New(apperror.KindInvalidArgument, "username %q is taken", username)
	} else if !errors.Is(err, apperror.NotFound) {
		return nil, apperror.Persistence(err, "check username")
	}

	now := s.now()
	u := &entity.User{
		ID:               uuid.NewString(),
		Username:         username,
		Email:            req.Email,
		Role:             role.String(),
		AssignedProjects: projects,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, apperror.Persistence(err, "create user")
	}
	return u, nil
}

// Create stores a new user with a normalized role
func (s *userServiceImpl) Create(ctx context.Context, actorID string, req CreateUserRequest) (*entity.User, error) {
	actor, err := s.requireManager(ctx, actorID)
	if err != nil {
		return nil, err
	}

	u, err := s.create(ctx, req)
	if err != nil {
		s.logger.Error("Failed to create user", "username", req.Username, "error", err)
		return nil, err
	}

	s.logger.Info("User created", "user_id", u.ID, "username", u.Username, "role", u.Role, "created_by", actor.ID)
	return u, nil
}

// AssignProjects replaces the user's project list
func (s *userServiceImpl) AssignProjects(ctx context.Context, actorID, userID string, projects []string) (*entity.User, error) {
	if _, err := s.requireManager(ctx, actorID); err != nil {
		return nil, err
	}
	cleaned, err := cleanProjects(projects)
	if err != nil {
		return nil, err
	}

	u, err := s.userRepo.Update(ctx, userID, entity.UserPatch{AssignedProjects: &cleaned})
	if err != nil {
		s.logger.Error("Failed to assign projects", "user_id", userID, "error", err)
		return nil, apperror.Persistence(err, "assign projects")
	}

	s.logger.Info("Projects assigned", "user_id", userID, "projects", cleaned)
	return u, nil
}

// Get returns a user record to the user themselves or a user manager
func (s *userServiceImpl) Get(ctx context.Context, actorID, userID string) (*entity.User, error) {
	actor, subject, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if actor.ID == userID {
		return actor, nil
	}
	if !s.evaluator.Allowed(subject, rbac.PermManageUsers, nil) {
		return nil, forbidden(actor, "view user "+userID)
	}

	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.Persistence(err, "load user")
	}
	return u, nil
}

// Capabilities answers the probe questions for the caller
func (s *userServiceImpl) Capabilities(ctx context.Context, actorID string) (*Capabilities, error) {
	actor, subject, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}

	perms := []rbac.Permission{
		rbac.PermApproveInvoice,
		rbac.PermFinalizePayment,
		rbac.PermSubmitInvoice,
		rbac.PermViewAuditLogs,
		rbac.PermConfigureSystem,
		rbac.PermManageUsers,
		rbac.PermProcessInvoice,
	}
	granted := make([]string, 0, len(perms))
	for _, p := range perms {
		if s.evaluator.Allowed(subject, p, nil) {
			granted = append(granted, p.String())
		}
	}
	sort.Strings(granted)

	caps := &Capabilities{
		UserID:                actor.ID,
		Role:                  subject.Role.String(),
		Permissions:           granted,
		CanPotentiallyApprove: s.evaluator.CanPotentiallyApprove(subject),
		CanFinalizePayment:    s.evaluator.Allowed(subject, rbac.PermFinalizePayment, nil),
		CanSubmitInvoice:      s.evaluator.Allowed(subject, rbac.PermSubmitInvoice, nil),
		CanViewAuditLogs:      s.evaluator.Allowed(subject, rbac.PermViewAuditLogs, nil),
		CanManageUsers:        s.evaluator.Allowed(subject, rbac.PermManageUsers, nil),
	}

	delegators, err := s.userRepo.FindDelegators(ctx, actor.ID)
	if err != nil {
		return nil, apperror.Persistence(err, "find delegators")
	}
	now := s.now()
	for _, d := range delegators {
		if !d.DelegationLive(now) || rbac.Normalize(d.Role) != rbac.RoleProjectManager {
			continue
		}
		caps.ActingFor = append(caps.ActingFor, d.ID)
		if !caps.CanPotentiallyApprove && s.evaluator.CanPotentiallyApprove(rbac.SubjectFor(d)) {
			caps.CanPotentiallyApprove = true
		}
	}
	return caps, nil
}

// EnsureAdmin is idempotent across restarts
func (s *userServiceImpl) EnsureAdmin(ctx context.Context, username, email string) (*entity.User, error) {
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.NotFound) {
		return nil, apperror.Persistence(err, "look up bootstrap admin")
	}

	u, err := s.create(ctx, CreateUserRequest{Username: username, Email: email, Role: rbac.RoleAdmin.String()})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Bootstrap admin created", "user_id", u.ID, "username", u.Username)
	return u, nil
}
