package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/TsutomuTakai/pp-case-api/internal/database/models"
)

// ListParams describes a filtered, sorted, paginated listing query.
// SortBy must already be validated against the allowed fields.
type ListParams struct {
	Page    int
	PerPage int
	Name    string // case-insensitive substring filter
	Email   string // case-insensitive substring filter
	SortBy  string // "", "name" or "email"
	Order   string // "asc" (default) or "desc"
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(user *models.User) error
	FindByEmail(email string) (*models.User, error)
	FindByID(id uint) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(params ListParams) ([]models.User, int64, error)
	EmailTakenByOther(email string, excludeID uint) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(user *models.User) error {
	err := r.db.Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	return err
}

func (r *userRepository) FindByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(user *models.User) error {
	err := r.db.Save(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	return err
}

func (r *userRepository) Delete(id uint) error {
	result := r.db.Delete(&models.User{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List applies the substring filters (AND), counts the matching total,
// then returns the requested page. A page past the end yields an empty
// slice with the correct total.
func (r *userRepository) List(params ListParams) ([]models.User, int64, error) {
	query := r.db.Model(&models.User{})

	if params.Name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(params.Name)+"%")
	}
	if params.Email != "" {
		query = query.Where("LOWER(email) LIKE ?", "%"+strings.ToLower(params.Email)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch params.SortBy {
	case "name", "email":
		direction := "ASC"
		if params.Order == "desc" {
			direction = "DESC"
		}
		// id as tie-break keeps the ordering stable across pages
		query = query.Order(params.SortBy + " " + direction).Order("id ASC")
	default:
		query = query.Order("id ASC")
	}

	offset := (params.Page - 1) * params.PerPage

	var users []models.User
	if err := query.Offset(offset).Limit(params.PerPage).Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepository) EmailTakenByOther(email string, excludeID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.User{}).
		Where("email = ? AND id <> ?", email, excludeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Repository errors
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already taken")
)
