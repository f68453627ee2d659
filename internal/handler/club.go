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

// ClubHandler groups club and membership endpoints.
type ClubHandler struct {
	clubService *service.ClubService
}

func NewClubHandler(clubService *service.ClubService) *ClubHandler {
	return &ClubHandler{clubService: clubService}
}

// Create founds a new club. Requires the earned can_create_club flag.
// POST /api/clubs
func (h *ClubHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req model.CreateClubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	club, err := h.clubService.Create(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrClubCreationForbidden):
			httputil.WriteError(w, http.StatusForbidden, model.CodeNotEligible, "You have not met the requirements to create a club yet")
		case errors.Is(err, model.ErrClubNameExists):
			httputil.WriteConflict(w, "A club with this name already exists")
		case errors.Is(err, model.ErrInvalidClubType):
			httputil.WriteBadRequest(w, "Unknown club type")
		default:
			httputil.WriteBadRequest(w, err.Error())
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, club)
}

// List returns clubs visible to the viewer
// GET /api/clubs
func (h *ClubHandler) List(w http.ResponseWriter, r *http.Request) {
	var viewerID *int64
	if id, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		viewerID = &id
	}

	clubs, err := h.clubService.List(r.Context(), viewerID)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list clubs")
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, clubs)
}

// ListMine returns the caller's clubs
// GET /api/clubs/user
func (h *ClubHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	clubs, err := h.clubService.ListForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list clubs")
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, clubs)
}

// Get returns a club with its members
// GET /api/clubs/{clubId}
func (h *ClubHandler) Get(w http.ResponseWriter, r *http.Request) {
	clubID, err := strconv.ParseInt(chi.URLParam(r, "clubId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid club ID")
		return
	}

	club, err := h.clubService.Get(r.Context(), clubID)
	if err != nil {
		if errors.Is(err, model.ErrClubNotFound) {
			httputil.WriteNotFound(w, "Club not found")
			return
		}
		httputil.WriteInternalError(w, "Failed to get club")
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, club)
}

// Join adds the caller to a public club, or files a join request for a
// private one
// POST /api/clubs/{clubId}/join
func (h *ClubHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	clubID, err := strconv.ParseInt(chi.URLParam(r, "clubId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid club ID")
		return
	}

	// Body is optional; private clubs accept an application message.
	var req model.JoinClubRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.clubService.Join(r.Context(), clubID, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrClubNotFound):
			httputil.WriteNotFound(w, "Club not found")
		case errors.Is(err, model.ErrAlreadyMember):
			httputil.WriteError(w, http.StatusConflict, model.CodeAlreadyMember, "Already a member of this club")
		case errors.Is(err, model.ErrJoinRequestPending):
			httputil.WriteError(w, http.StatusConflict, model.CodeRequestPending, "A join request is already pending")
		default:
			httputil.WriteInternalError(w, "Failed to join club")
		}
		return
	}

	status := http.StatusOK
	if !result.Joined {
		status = http.StatusAccepted
	}
	httputil.WriteSuccess(w, status, result)
}

// ListJoinRequests returns the pending requests for a club. Admin only.
// GET /api/clubs/{clubId}/requests
func (h *ClubHandler) ListJoinRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	clubID, err := strconv.ParseInt(chi.URLParam(r, "clubId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid club ID")
		return
	}

	requests, err := h.clubService.ListJoinRequests(r.Context(), clubID, userID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrClubNotFound):
			httputil.WriteNotFound(w, "Club not found")
		case errors.Is(err, model.ErrNotClubAdmin):
			httputil.WriteForbidden(w, "Only club admins can view join requests")
		default:
			httputil.WriteInternalError(w, "Failed to list join requests")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, requests)
}

// ResolveJoinRequest approves or rejects a pending join request. Admin only.
// POST /api/clubs/requests/{requestId}
func (h *ClubHandler) ResolveJoinRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	requestID, err := strconv.ParseInt(chi.URLParam(r, "requestId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid request ID")
		return
	}

	var decision model.ResolveJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	request, err := h.clubService.ResolveJoinRequest(r.Context(), requestID, userID, &decision)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrJoinRequestNotFound):
			httputil.WriteNotFound(w, "Join request not found")
		case errors.Is(err, model.ErrNotClubAdmin):
			httputil.WriteForbidden(w, "Only club admins can resolve join requests")
		case errors.Is(err, model.ErrJoinRequestResolved):
			httputil.WriteError(w, http.StatusConflict, model.CodeRequestResolved, "This join request has already been resolved")
		default:
			httputil.WriteInternalError(w, "Failed to resolve join request")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, request)
}
