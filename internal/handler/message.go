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

// MessageHandler groups direct-messaging endpoints.
type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// Send delivers a message to another user
// POST /api/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrMessageToSelf):
			httputil.WriteBadRequest(w, "Cannot send a message to yourself")
		case errors.Is(err, model.ErrEmptyMessage):
			httputil.WriteBadRequest(w, "Message content is required")
		case errors.Is(err, model.ErrMessageTooLong):
			httputil.WriteBadRequest(w, "Message content exceeds the 2000 character limit")
		case errors.Is(err, model.ErrInvalidMsgType):
			httputil.WriteBadRequest(w, "Unknown message type")
		case errors.Is(err, model.ErrUserNotFound):
			httputil.WriteNotFound(w, "Recipient not found")
		default:
			httputil.WriteInternalError(w, "Failed to send message")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, msg)
}

// List returns the caller's messages, newest first
// GET /api/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	msgs, err := h.messageService.ListForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list messages")
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, msgs)
}

// ListForRide returns the messages attached to a ride
// GET /api/messages/ride/{rideId}
func (h *MessageHandler) ListForRide(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserIDFromContext(r.Context()); !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	rideID, err := strconv.ParseInt(chi.URLParam(r, "rideId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid ride ID")
		return
	}

	msgs, err := h.messageService.ListForRide(r.Context(), rideID)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list ride messages")
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, msgs)
}

// ListConversations returns the caller's threads, most recent first
// GET /api/messages/threads
func (h *MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	convs, err := h.messageService.ListConversations(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, "Failed to list conversations")
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, convs)
}

// MarkConversationRead zeroes the caller's unread counter for a thread
// POST /api/messages/threads/{userId}/read
func (h *MessageHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	otherID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid user ID")
		return
	}

	if err := h.messageService.MarkConversationRead(r.Context(), userID, otherID); err != nil {
		switch {
		case errors.Is(err, model.ErrConversationNotFound):
			httputil.WriteNotFound(w, "Conversation not found")
		default:
			httputil.WriteInternalError(w, "Failed to mark conversation read")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Conversation marked read",
	})
}

// Delete removes a message. Sender only.
// DELETE /api/messages/{messageId}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Not authenticated")
		return
	}

	msgID, err := strconv.ParseInt(chi.URLParam(r, "messageId"), 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid message ID")
		return
	}

	if err := h.messageService.Delete(r.Context(), msgID, userID); err != nil {
		switch {
		case errors.Is(err, model.ErrMessageNotFound):
			httputil.WriteNotFound(w, "Message not found")
		case errors.Is(err, model.ErrNotMessageSender):
			httputil.WriteForbidden(w, "Only the sender can delete a message")
		default:
			httputil.WriteInternalError(w, "Failed to delete message")
		}
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, map[string]string{
		"message": "Message deleted",
	})
}
