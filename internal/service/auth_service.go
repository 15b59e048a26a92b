package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ErrInvalidCredentials is returned when a password does not match its hash.
var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenType distinguishes student, guest and admin tokens.
type TokenType string

const (
	TokenTypeStudent TokenType = "student"
	TokenTypeGuest   TokenType = "guest"
	TokenTypeAdmin   TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
// Student and admin tokens are issued by the main exstem backend with the
// same secret; guest tokens are issued here.
type Claims struct {
	jwt.RegisteredClaims
	TokenType   TokenType `json:"token_type"`
	UserID      int       `json:"user_id,omitempty"`
	GuestID     string    `json:"guest_id,omitempty"`    // Guest only
	GuestName   string    `json:"guest_name,omitempty"`  // Guest only
	ClassID     int       `json:"class_id,omitempty"`    // Student only
	RoleID      int       `json:"role_id,omitempty"`     // Admin only
	Permissions []string  `json:"permissions,omitempty"` // Admin only
}

// Taker returns the exam taker the token identifies. Admin tokens are not takers.
func (c *Claims) Taker() (model.Taker, bool) {
	switch c.TokenType {
	case TokenTypeStudent:
		return model.StudentTaker(c.UserID), c.UserID > 0
	case TokenTypeGuest:
		return model.GuestTaker(c.GuestID), c.GuestID != ""
	}
	return model.Taker{}, false
}

// StudentClassID returns the class claim, nil when absent.
func (c *Claims) StudentClassID() *int {
	if c.TokenType != TokenTypeStudent || c.ClassID == 0 {
		return nil
	}
	id := c.ClassID
	return &id
}

// AuthService handles JWTs and password hashing.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateStudentToken creates a JWT for a student.
func (s *AuthService) GenerateStudentToken(studentID, classID int) (string, error) {
	return s.sign(Claims{
		RegisteredClaims: s.registered(strconv.Itoa(studentID)),
		TokenType:        TokenTypeStudent,
		UserID:           studentID,
		ClassID:          classID,
	})
}

// GenerateGuestToken creates a JWT for a new guest identity and returns it
// together with the generated guest id.
func (s *AuthService) GenerateGuestToken(name string) (string, string, error) {
	guestID := uuid.New().String()
	token, err := s.sign(Claims{
		RegisteredClaims: s.registered("guest:" + guestID),
		TokenType:        TokenTypeGuest,
		GuestID:          guestID,
		GuestName:        name,
	})
	return token, guestID, err
}

// GenerateAdminToken creates a JWT for an admin with permissions embedded.
func (s *AuthService) GenerateAdminToken(adminID, roleID int, permissions []string) (string, error) {
	return s.sign(Claims{
		RegisteredClaims: s.registered(strconv.Itoa(adminID)),
		TokenType:        TokenTypeAdmin,
		UserID:           adminID,
		RoleID:           roleID,
		Permissions:      permissions,
	})
}

func (s *AuthService) registered(subject string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
	}
}

func (s *AuthService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
