package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptofolio/internal/config"
	"cryptofolio/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidInput means a registration or password field failed validation.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrUsernameTaken means the requested username already exists.
	ErrUsernameTaken = errors.New("auth: username already taken")
	// ErrInvalidCredentials means the username/password pair did not verify.
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	// ErrInvalidToken means a session token failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Service handles registration, login and password changes.
type Service struct {
	db           *gorm.DB
	logger       *zap.Logger
	jwtSecret    []byte
	tokenTTL     time.Duration
	startingCash decimal.Decimal
}

// NewService creates a new auth service.
func NewService(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		db:           db,
		logger:       logger,
		jwtSecret:    []byte(cfg.Server.JwtSecret),
		tokenTTL:     time.Duration(cfg.Server.TokenTTLHours) * time.Hour,
		startingCash: decimal.NewFromFloat(cfg.Trading.StartingCash),
	}
}

// Register creates a new user with a hashed password and the configured
// starting cash balance.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("%w: username too long (max 50 characters)", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrInvalidInput)
	}
	if len(password) > 100 {
		return nil, fmt.Errorf("%w: password too long (max 100 characters)", ErrInvalidInput)
	}
	if password != confirmation {
		return nil, fmt.Errorf("%w: passwords do not match", ErrInvalidInput)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hashedPassword),
		Cash:         s.startingCash,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		err := tx.Where("username = ?", username).First(&existing).Error
		if err == nil {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Registered user", zap.Uint("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// Login verifies credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(s.tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, &user, nil
}

// VerifyToken validates a session token and returns the user id it carries.
func (s *Service) VerifyToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(float64)
	if !ok || userID < 1 {
		return 0, ErrInvalidToken
	}
	return uint(userID), nil
}

// ChangePassword verifies the old password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword, confirmation string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password cannot be empty", ErrInvalidInput)
	}
	if newPassword != confirmation {
		return fmt.Errorf("%w: new passwords do not match", ErrInvalidInput)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("password_hash", string(hashed)).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("Changed password", zap.Uint("user_id", userID))
	return nil
}
