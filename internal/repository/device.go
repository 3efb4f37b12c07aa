package repository

import (
	"context"
	"errors"
	"fmt"

	"swipe-match-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// CreateDevice creates a new device
func (r *PostgresRepository) CreateDevice(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (id, push_token, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.Exec(ctx, query, device.ID, device.PushToken, device.CreatedAt)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return fmt.Errorf("failed to create device: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// GetDevice retrieves a device by ID
func (r *PostgresRepository) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	query := `
		SELECT id, push_token, created_at
		FROM devices
		WHERE id = $1
	`
	var device models.Device
	err := r.db.QueryRow(ctx, query, id).Scan(&device.ID, &device.PushToken, &device.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("device not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

// UpdatePushToken updates the push token for a device
func (r *PostgresRepository) UpdatePushToken(ctx context.Context, deviceID string, pushToken *string) error {
	query := `UPDATE devices SET push_token = $1 WHERE id = $2`
	result, err := r.db.Exec(ctx, query, pushToken, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("device not found: %w", ErrNotFound)
	}
	return nil
}
