package service

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/TsutomuTakai/pp-case-api/internal/config"
	"github.com/TsutomuTakai/pp-case-api/internal/database/models"
	"github.com/TsutomuTakai/pp-case-api/internal/database/repository"
)

// AuthService defines the interface for authentication business logic
type AuthService interface {
	Login(email, password string) (*models.User, *AccessToken, error)
	IssueToken(userID uint) (*AccessToken, error)
	ValidateAccessToken(tokenString string) (uint, error)
}

// AccessToken is a signed bearer token with its lifetime in seconds
type AccessToken struct {
	Token     string
	ExpiresIn int64
}

type authService struct {
	userRepo  repository.UserRepository
	jwtSecret string
	cfg       *config.Config
	logger    *slog.Logger
}

// NewAuthService creates a new authentication service instance
func NewAuthService(userRepo repository.UserRepository, cfg *config.Config, logger *slog.Logger) AuthService {
	return &authService{
		userRepo:  userRepo,
		jwtSecret: cfg.JWTSecret,
		cfg:       cfg,
		logger:    logger,
	}
}

// Login verifies the email/password pair and issues a token.
// "no such user" and "wrong password" both collapse to
// ErrInvalidCredentials so callers cannot enumerate accounts.
func (s *authService) Login(email, password string) (*models.User, *AccessToken, error) {
	s.logger.Info("🔐 [AuthService] Login attempt", "email", email)

	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Warn("⚠️ [AuthService] User not found", "email", email)
			return nil, nil, ErrInvalidCredentials
		}
		s.logger.Error("❌ [AuthService] Database error", "error", err)
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("⚠️ [AuthService] Invalid password", "email", email)
		return nil, nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		s.logger.Error("❌ [AuthService] Failed to issue token", "error", err)
		return nil, nil, err
	}

	s.logger.Info("✅ [AuthService] User logged in successfully", "user_id", user.ID)
	return user, token, nil
}

// IssueToken signs a token carrying the user id as subject with a
// fixed expiry window. No state is kept; validity is signature + expiry.
func (s *authService) IssueToken(userID uint) (*AccessToken, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"exp": now.Add(time.Duration(s.cfg.TokenExpiration) * time.Second).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &AccessToken{
		Token:     signed,
		ExpiresIn: s.cfg.TokenExpiration,
	}, nil
}

// ValidateAccessToken checks signature and expiry, then resolves the
// subject to a live user record. A token whose subject no longer exists
// is treated as invalid.
func (s *authService) ValidateAccessToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrInvalidToken
	}
	if !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	subject, ok := claims["sub"].(string)
	if !ok {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.ParseUint(subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}

	if _, err := s.userRepo.FindByID(uint(userID)); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidToken
		}
		return 0, err
	}

	return uint(userID), nil
}

// Service errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)
