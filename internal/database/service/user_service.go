package service

import (
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/TsutomuTakai/pp-case-api/internal/config"
	"github.com/TsutomuTakai/pp-case-api/internal/database/models"
	"github.com/TsutomuTakai/pp-case-api/internal/database/repository"
)

// UserService defines the interface for user business logic
type UserService interface {
	CreateUser(name, email, password string) (*models.User, error)
	GetUser(id uint) (*models.User, error)
	UpdateUser(id uint, update UserUpdate) (*models.User, error)
	DeleteUser(id uint) error
	ListUsers(query ListQuery) (*UserPage, error)
}

// UserUpdate carries the optional fields of a partial update
type UserUpdate struct {
	Name     *string
	Email    *string
	Password *string
}

// ListQuery carries the raw listing parameters before normalization
type ListQuery struct {
	Page    int
	PerPage int
	Name    string
	Email   string
	SortBy  string
	Order   string
}

// UserPage is one page of the listing plus its pagination metadata
type UserPage struct {
	Items      []models.User
	Page       int
	PerPage    int
	TotalItems int64
	TotalPages int
	HasNext    bool
	HasPrev    bool
	NextPage   *int
	PrevPage   *int
}

type userService struct {
	userRepo repository.UserRepository
	cfg      *config.Config
	logger   *slog.Logger
}

// NewUserService creates a new user service instance
func NewUserService(userRepo repository.UserRepository, cfg *config.Config, logger *slog.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *userService) CreateUser(name, email, password string) (*models.User, error) {
	s.logger.Info("📝 [UserService] Creating user", "email", email)

	existing, err := s.userRepo.FindByEmail(email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		s.logger.Error("❌ [UserService] Database error", "error", err)
		return nil, err
	}
	if existing != nil {
		s.logger.Warn("⚠️ [UserService] Email already registered", "email", email)
		return nil, ErrEmailAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("❌ [UserService] Failed to hash password", "error", err)
		return nil, err
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}

	if err := s.userRepo.Create(user); err != nil {
		// The unique index is the authority; a concurrent create with the
		// same email loses here even though the pre-check above passed.
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailAlreadyExists
		}
		s.logger.Error("❌ [UserService] Failed to create user", "error", err)
		return nil, err
	}

	s.logger.Info("✅ [UserService] User created", "user_id", user.ID)
	return user, nil
}

func (s *userService) GetUser(id uint) (*models.User, error) {
	return s.userRepo.FindByID(id)
}

func (s *userService) UpdateUser(id uint, update UserUpdate) (*models.User, error) {
	s.logger.Info("✏️ [UserService] Updating user", "user_id", id)

	user, err := s.userRepo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		user.Name = *update.Name
	}

	if update.Email != nil && *update.Email != user.Email {
		taken, err := s.userRepo.EmailTakenByOther(*update.Email, id)
		if err != nil {
			s.logger.Error("❌ [UserService] Failed to check email uniqueness", "error", err)
			return nil, err
		}
		if taken {
			s.logger.Warn("⚠️ [UserService] Email already registered to another user", "email", *update.Email)
			return nil, ErrEmailAlreadyExists
		}
		user.Email = *update.Email
	}

	if update.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*update.Password), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("❌ [UserService] Failed to hash password", "error", err)
			return nil, err
		}
		user.PasswordHash = string(hash)
	}

	if err := s.userRepo.Update(user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailAlreadyExists
		}
		s.logger.Error("❌ [UserService] Failed to update user", "user_id", id, "error", err)
		return nil, err
	}

	s.logger.Info("✅ [UserService] User updated", "user_id", id)
	return user, nil
}

func (s *userService) DeleteUser(id uint) error {
	s.logger.Info("🗑️ [UserService] Deleting user", "user_id", id)

	if err := s.userRepo.Delete(id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Warn("⚠️ [UserService] User not found", "user_id", id)
		} else {
			s.logger.Error("❌ [UserService] Failed to delete user", "user_id", id, "error", err)
		}
		return err
	}

	s.logger.Info("✅ [UserService] User deleted", "user_id", id)
	return nil
}

// ListUsers validates and normalizes the query, runs it, and computes
// the pagination metadata. Invalid sort parameters fail before any
// query executes.
func (s *userService) ListUsers(query ListQuery) (*UserPage, error) {
	switch query.SortBy {
	case "", "name", "email":
	default:
		return nil, ErrInvalidSortField
	}
	switch query.Order {
	case "", "asc", "desc":
	default:
		return nil, ErrInvalidSortOrder
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	perPage := query.PerPage
	if perPage < 1 {
		perPage = s.cfg.DefaultPerPage
	}
	if perPage > s.cfg.MaxPerPage {
		perPage = s.cfg.MaxPerPage
	}

	users, total, err := s.userRepo.List(repository.ListParams{
		Page:    page,
		PerPage: perPage,
		Name:    query.Name,
		Email:   query.Email,
		SortBy:  query.SortBy,
		Order:   query.Order,
	})
	if err != nil {
		s.logger.Error("❌ [UserService] Failed to list users", "error", err)
		return nil, err
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	result := &UserPage{
		Items:      users,
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
	if result.HasNext {
		next := page + 1
		result.NextPage = &next
	}
	if result.HasPrev {
		prev := page - 1
		result.PrevPage = &prev
	}

	return result, nil
}

// Service errors
var (
	ErrEmailAlreadyExists = errors.New("email already registered")
	ErrInvalidSortField   = errors.New("invalid sort field")
	ErrInvalidSortOrder   = errors.New("invalid sort order")
)
