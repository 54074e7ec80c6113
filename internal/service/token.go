package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Роли пользователей площадки.
const (
	RoleClient     = "client"
	RoleTechnician = "technician"
	RoleOperator   = "operator"
	RoleAdmin      = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

// IsStaff возвращает true для сотрудников площадки.
func IsStaff(role string) bool {
	return role == RoleOperator || role == RoleAdmin
}

func ValidRole(role string) bool {
	switch role {
	case RoleClient, RoleTechnician, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// TokenManager отвечает за выпуск и проверку JWT.
// Пользователи аутентифицируются внешним сервисом, здесь только access-токены.
type TokenManager struct {
	accessSecret []byte
	accessTTL    time.Duration
	now          func() time.Time
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(accessSecret string, accessTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret: []byte(accessSecret),
		accessTTL:    accessTTL,
		now:          time.Now,
	}
}

// Issue выпускает access токен. ttl <= 0 означает срок по умолчанию.
func (m *TokenManager) Issue(userID uuid.UUID, role string, ttl time.Duration) (string, time.Time, error) {
	if !ValidRole(role) {
		return "", time.Time{}, ErrUnknownRole
	}
	if ttl <= 0 {
		ttl = m.accessTTL
	}
	now := m.now()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess извлекает userID и роль из access токена.
func (m *TokenManager) ParseAccess(token string) (uuid.UUID, string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return m.accessSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, "", err
	}
	if !parsed.Valid {
		return uuid.Nil, "", jwt.ErrTokenInvalidClaims
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", jwt.ErrTokenInvalidClaims
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, "", jwt.ErrTokenInvalidClaims
	}

	role, _ := claims["role"].(string)
	if !ValidRole(role) {
		return uuid.Nil, "", ErrUnknownRole
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", err
	}

	return userID, role, nil
}
