package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/pondapp/chat-server/internal/server"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// initRoom opens the conversation for a listing, creating it on first
// contact. Only the buyer side may initiate: the caller must be the
// buyer named in the request.
func (s *ChatApp) initRoom(w http.ResponseWriter, r *http.Request) {
	callerId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	listingId := r.URL.Query().Get("listing_id")
	buyerId := r.URL.Query().Get("buyer_id")
	if listingId == "" || buyerId == "" {
		errResp := NewBadRequestError("listing_id and buyer_id are required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if buyerId != callerId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rooms.GetOrCreate(listingId, buyerId)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	detail, err := s.rooms.Detail(room.RoomId, callerId)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, detail)
}

func (s *ChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	callerId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	summaries, err := s.rooms.List(callerId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, summaries)
}

func (s *ChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	callerId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	detail, err := s.rooms.Detail(r.PathValue("roomId"), callerId)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, detail)
}

func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	callerId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	page, err := parseIntParam(r, "page", 0)
	if err != nil {
		errResp := NewBadRequestError("invalid page")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	size, err := parseIntParam(r, "size", defaultPageSize)
	if err != nil || size < 1 || size > maxPageSize {
		errResp := NewBadRequestError("invalid size")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.messages.History(r.PathValue("roomId"), callerId, page, size)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

// markRead marks every message from the other participant as read.
func (s *ChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	callerId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.messages.MarkRead(r.PathValue("roomId"), callerId)
	if err != nil {
		errResp := chatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.log.Printf("marked %d messages read in %q for %s", updated, r.PathValue("roomId"), callerId)
	s.writeJson(w, http.StatusOK, map[string]string{"result": "success"})
}

func (s *ChatApp) unreadCount(w http.ResponseWriter, r *http.Request) {
	callerId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.messages.UnreadTotal(callerId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int64{"unreadCount": count})
}

// serveWs upgrades the connection. A credential is optional at the
// handshake since intermediaries can strip it; a present-but-invalid
// one is still rejected. The session binds its identity with a
// connect frame either way.
func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if _, err := s.auth.Verify(token); err != nil {
			s.log.Printf("rejecting handshake: %v", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.log, s.stats)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

func parseIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, strconv.ErrSyntax
	}
	return val, nil
}
