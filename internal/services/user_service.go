package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/cova/internal/core"
	"github.com/markdave123-py/cova/internal/models"
)

type UserService struct {
	db       core.DbClient
	validate *validator.Validate
}

func NewUserService(db core.DbClient) *UserService {
	return &UserService{db: db, validate: validator.New()}
}

// SignupInput registers a profile together with its tenant.
type SignupInput struct {
	TenantName string `json:"tenant" validate:"required,max=200"`
	FirstName  string `json:"first_name" validate:"max=200"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
}

func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.TenantName = strings.TrimSpace(in.TenantName)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	existing, err := s.db.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	tenant := &models.Tenant{ID: uuid.NewString(), Name: in.TenantName, CreatedAt: now}
	if err := s.db.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		TenantID:     tenant.ID,
		FirstName:    strings.TrimSpace(in.FirstName),
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate returns the user whose credentials match, or ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.db.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) Tenant(ctx context.Context, id string) (*models.Tenant, error) {
	t, err := s.db.GetTenantByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}
