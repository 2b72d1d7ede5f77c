package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/roomcast/internal/middleware"
	"github.com/roomcast/internal/model"
	"github.com/roomcast/internal/service"
)

type RoomHandler struct {
	rooms *service.RoomService
}

func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID := middleware.GetUserID(r.Context())
	room, err := h.rooms.CreateRoom(r.Context(), userID, req.Name, req.Description, req.IsPrivate)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	rooms, err := h.rooms.ListRooms(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	room, err := h.rooms.GetRoom(r.Context(), userID, chi.URLParam(r, "roomId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type updateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID := middleware.GetUserID(r.Context())
	room, err := h.rooms.UpdateRoom(r.Context(), userID, chi.URLParam(r, "roomId"), req.Name, req.Description)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	m, err := h.rooms.JoinRoom(r.Context(), userID, chi.URLParam(r, "roomId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.rooms.LeaveRoom(r.Context(), userID, chi.URLParam(r, "roomId")); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *RoomHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	callerID := middleware.GetUserID(r.Context())
	m, err := h.rooms.AddMember(r.Context(), callerID, chi.URLParam(r, "roomId"), req.UserID, model.Role(req.Role))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *RoomHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	err := h.rooms.RemoveMember(r.Context(), callerID, chi.URLParam(r, "roomId"), chi.URLParam(r, "userId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (h *RoomHandler) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	callerID := middleware.GetUserID(r.Context())
	err := h.rooms.SetMemberRole(r.Context(), callerID, chi.URLParam(r, "roomId"), chi.URLParam(r, "userId"), model.Role(req.Role))
	if err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	members, err := h.rooms.ListMembers(r.Context(), userID, chi.URLParam(r, "roomId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}
