package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"swipe-match-backend/internal/models"
	"swipe-match-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 365 * 24 * time.Hour

// DeviceService issues and validates anonymous device identities
type DeviceService struct {
	repo      repository.Repository
	jwtSecret string
	tokenTTL  time.Duration
}

// NewDeviceService creates a new device service
func NewDeviceService(repo repository.Repository, jwtSecret string, tokenTTL time.Duration) *DeviceService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &DeviceService{
		repo:      repo,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// GenerateToken signs a token carrying the device id
func (s *DeviceService) GenerateToken(deviceID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"device_id": deviceID,
		"exp":       now.Add(s.tokenTTL).Unix(),
		"iat":       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a token and returns the device id
func (s *DeviceService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	deviceID, ok := claims["device_id"].(string)
	if !ok || deviceID == "" {
		return "", fmt.Errorf("device_id not found in token")
	}

	return deviceID, nil
}

// Register creates a new anonymous device and its token
func (s *DeviceService) Register(ctx context.Context) (*models.Device, error) {
	deviceID := uuid.New().String()

	token, err := s.GenerateToken(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	device := &models.Device{
		ID:        deviceID,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.CreateDevice(ctx, device); err != nil {
		return nil, persistence("create device", err)
	}

	return device, nil
}

// GetDevice returns a registered device
func (s *DeviceService) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := s.repo.GetDevice(ctx, deviceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("device %s", deviceID)
	}
	if err != nil {
		return nil, persistence("get device", err)
	}
	return device, nil
}

// UpdatePushToken stores the APNs token of a device. An empty token clears it.
func (s *DeviceService) UpdatePushToken(ctx context.Context, deviceID, pushToken string) error {
	var tok *string
	if pushToken != "" {
		tok = &pushToken
	}

	err := s.repo.UpdatePushToken(ctx, deviceID, tok)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("device %s", deviceID)
	}
	if err != nil {
		return persistence("update push token", err)
	}
	return nil
}
