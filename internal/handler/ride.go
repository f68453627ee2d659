package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wildpals/internal/httputil"
	"wildpals/internal/model"
	"wildpals/internal/service"
	"wildpals/internal/transport/http/middleware"
)

// RideHandler groups ride CRUD and participation endpoints.
type RideHandler struct {
	rideService *service.RideService
}

func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// Create publishes a new ride with the caller as organizer
// POST /api/rides
func (h *RideHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req model.CreateRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	ride, err := h.rideService.Create(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidRouteType):
			httputil.WriteBadRequest(w, "Route type must be one of: road, mountain, gravel")
		case errors.Is(err, model.ErrInvalidDifficulty):
			httputil.WriteBadRequest(w, "Unknown difficulty level")
		case errors.Is(err, model.ErrInvalidCapacity):
			httputil.WriteBadRequest(w, "Max participants must be at least 1")
		default:
			httputil.WriteBadRequest(w, err.Error())
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, ride)
}

// List returns upcoming public rides sorted by start time
// GET /api/rides
func (h *RideHandler) List(w http.ResponseWriter, r *http.Request) {
	rides, err := h.rideService.ListUpcoming(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list rides")
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, rides)
}

// Get returns a single ride with its participants
// GET /api/rides/{rideId}
func (h *RideHandler) Get(w http.ResponseWriter, r *http.Request) {
	rideID, err := strconv.ParseInt(chi.URLParam(r, "rideId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid ride ID")
		return
	}

	var viewerID *int64
	if id, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		viewerID = &id
	}

	ride, err := h.rideService.Get(r.Context(), rideID, viewerID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRideNotFound):
			httputil.WriteNotFound(w, "Ride not found")
		case errors.Is(err, model.ErrRidePrivate):
			httputil.WriteForbidden(w, "This ride is private")
		default:
			httputil.WriteInternalError(w, "Failed to get ride")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, ride)
}

// Update applies a partial edit. Organizer only.
// PUT /api/rides/{rideId}
func (h *RideHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	rideID, err := strconv.ParseInt(chi.URLParam(r, "rideId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid ride ID")
		return
	}

	var req model.UpdateRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	ride, err := h.rideService.Update(r.Context(), rideID, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRideNotFound):
			httputil.WriteNotFound(w, "Ride not found")
		case errors.Is(err, model.ErrNotRideOrganizer):
			httputil.WriteForbidden(w, "Only the organizer can edit this ride")
		case errors.Is(err, model.ErrInvalidRouteType):
			httputil.WriteBadRequest(w, "Route type must be one of: road, mountain, gravel")
		case errors.Is(err, model.ErrInvalidDifficulty):
			httputil.WriteBadRequest(w, "Unknown difficulty level")
		case errors.Is(err, model.ErrInvalidCapacity):
			httputil.WriteBadRequest(w, "Max participants must be at least 1")
		case errors.Is(err, model.ErrCapacityBelowCount):
			httputil.WriteBadRequest(w, "Max participants cannot drop below current participant count")
		default:
			httputil.WriteInternalError(w, "Failed to update ride")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, ride)
}

// Delete removes a ride. Organizer only.
// DELETE /api/rides/{rideId}
func (h *RideHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	rideID, err := strconv.ParseInt(chi.URLParam(r, "rideId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid ride ID")
		return
	}

	if err := h.rideService.Delete(r.Context(), rideID, userID); err != nil {
		switch {
		case errors.Is(err, model.ErrRideNotFound):
			httputil.WriteNotFound(w, "Ride not found")
		case errors.Is(err, model.ErrNotRideOrganizer):
			httputil.WriteForbidden(w, "Only the organizer can delete this ride")
		default:
			httputil.WriteInternalError(w, "Failed to delete ride")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Ride deleted",
	})
}

// Join enrolls the caller in a ride
// POST /api/rides/{rideId}/join
func (h *RideHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	rideID, err := strconv.ParseInt(chi.URLParam(r, "rideId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid ride ID")
		return
	}

	if err := h.rideService.Join(r.Context(), rideID, userID); err != nil {
		switch {
		case errors.Is(err, model.ErrRideNotFound):
			httputil.WriteNotFound(w, "Ride not found")
		case errors.Is(err, model.ErrAlreadyJoined):
			httputil.WriteError(w, http.StatusConflict, model.CodeAlreadyJoined, "Already joined this ride")
		case errors.Is(err, model.ErrRideFull):
			httputil.WriteError(w, http.StatusConflict, model.CodeRideFull, "This ride is full")
		default:
			httputil.WriteInternalError(w, "Failed to join ride")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Joined ride",
	})
}

// Leave removes the caller from a ride
// POST /api/rides/{rideId}/leave
func (h *RideHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	rideID, err := strconv.ParseInt(chi.URLParam(r, "rideId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid ride ID")
		return
	}

	if err := h.rideService.Leave(r.Context(), rideID, userID); err != nil {
		switch {
		case errors.Is(err, model.ErrRideNotFound):
			httputil.WriteNotFound(w, "Ride not found")
		case errors.Is(err, model.ErrOrganizerLeave):
			httputil.WriteBadRequest(w, "The organizer cannot leave their own ride")
		case errors.Is(err, model.ErrNotJoined):
			httputil.WriteError(w, http.StatusConflict, model.CodeNotJoined, "Not a participant of this ride")
		default:
			httputil.WriteInternalError(w, "Failed to leave ride")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Left ride",
	})
}
