package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"loadboard/auth"
	"loadboard/document"
	"loadboard/load"
)

// errorBody is the stable envelope every failure response carries: a
// machine-checkable category plus a human-readable message. Internals are
// never exposed.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, category, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Category: category, Message: message}})
}

// writeServiceError maps domain sentinels onto the error taxonomy.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, load.ErrValidation), errors.Is(err, document.ErrNoFile), errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, load.ErrForbidden):
		writeError(w, http.StatusForbidden, "authorization", err.Error())
	case errors.Is(err, load.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, load.ErrNotOpen):
		writeError(w, http.StatusConflict, "state_conflict", "load is no longer open")
	case errors.Is(err, load.ErrNotAssigned):
		writeError(w, http.StatusConflict, "state_conflict", "load is not assigned to you")
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
	case errors.Is(err, document.ErrRender):
		logger.Error("render capability failed", "error", err)
		writeError(w, http.StatusBadGateway, "external_service_failure", "document rendering failed, please retry")
	default:
		logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// loadResponse is the wire shape for a Load.
type loadResponse struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Origin          string        `json:"origin"`
	Destination     string        `json:"destination"`
	EquipmentType   string        `json:"equipmentType"`
	Rate            float64       `json:"rate"`
	Status          load.Status   `json:"status"`
	PostedBy        string        `json:"postedBy"`
	AcceptedBy      *string       `json:"acceptedBy"`
	CarrierLocation *locationBody `json:"carrierLocation"`
	PickupDate      *string       `json:"pickupDate,omitempty"`
	DeliveryDate    *string       `json:"deliveryDate,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

type locationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func toLoadResponse(l load.Load) loadResponse {
	resp := loadResponse{
		ID:            l.ID,
		Title:         l.Title,
		Origin:        l.Origin,
		Destination:   l.Destination,
		EquipmentType: l.EquipmentType,
		Rate:          l.Rate,
		Status:        l.Status,
		PostedBy:      l.PostedBy,
		AcceptedBy:    l.AcceptedBy,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if l.CarrierLat != nil && l.CarrierLng != nil {
		resp.CarrierLocation = &locationBody{Latitude: *l.CarrierLat, Longitude: *l.CarrierLng}
	}
	if l.PickupDate != nil {
		d := l.PickupDate.Format("2006-01-02")
		resp.PickupDate = &d
	}
	if l.DeliveryDate != nil {
		d := l.DeliveryDate.Format("2006-01-02")
		resp.DeliveryDate = &d
	}
	return resp
}

func toLoadResponses(loads []load.Load) []loadResponse {
	out := make([]loadResponse, 0, len(loads))
	for _, l := range loads {
		out = append(out, toLoadResponse(l))
	}
	return out
}
