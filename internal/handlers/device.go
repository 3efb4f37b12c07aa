package handlers

import (
	"encoding/json"
	"net/http"

	"swipe-match-backend/internal/middleware"
	"swipe-match-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// DeviceHandler handles device-related HTTP requests
type DeviceHandler struct {
	deviceService *services.DeviceService
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
	}
}

// RegisterDevice handles POST /api/v1/devices
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.deviceService.Register(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to register device")
		respondServiceError(w, err)
		return
	}

	log.Info().Str("device_id", device.ID).Msg("Device registered")

	respondJSON(w, http.StatusCreated, device)
}

// UpdatePushTokenRequest represents the request body for updating a push token
type UpdatePushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// UpdatePushToken handles PUT /api/v1/devices/push-token
func (h *DeviceHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := middleware.GetDeviceID(ctx)

	var req UpdatePushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.deviceService.UpdatePushToken(ctx, deviceID, req.PushToken); err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Failed to update push token")
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
