package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teahub/internal/chat"
	"github.com/npezzotti/go-teahub/internal/types"
)

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Password    string `json:"password"`
}

type JoinRoomRequest struct {
	Password string `json:"password"`
}

type SendMessageRequest struct {
	RoomId int    `json:"room_id"`
	Body   string `json:"body"`
}

type MessageBodyRequest struct {
	Body string `json:"body"`
}

type LeaveResponse struct {
	Left        bool `json:"left"`
	MemberCount int  `json:"member_count"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// writeError writes err mapped to its status code. Internal errors are
// logged and their cause is not exposed.
func (s *GoChatApp) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errResp := errorResponse(err)
	if errResp.StatusCode == http.StatusInternalServerError {
		s.log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// actor identifies the caller. Events caused by the request skip the
// caller's own websocket when it sends its socket id.
func actor(r *http.Request) (chat.Actor, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		return chat.Actor{}, false
	}

	return chat.Actor{
		UserId:   userId,
		Username: Username(r.Context()),
		SocketId: r.Header.Get(socketIdHeader),
	}, true
}

func pathId(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// decodeOptional decodes a JSON body that may be empty.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) listPublicRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.chat.ListPublicRooms(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat.ToRooms(rooms))
}

func (s *GoChatApp) listJoinedRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms, err := s.chat.ListJoinedRooms(r.Context(), userId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat.ToRooms(rooms))
}

func (s *GoChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.chat.CreateRoom(r.Context(), a, chat.CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		Password:    req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusCreated, chat.ToRoom(room))
}

func (s *GoChatApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	roomId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chat.DeleteRoom(r.Context(), a, roomId); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) listMembers(w http.ResponseWriter, r *http.Request) {
	roomId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	members, err := s.chat.ListMembers(r.Context(), a, roomId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat.ToMembers(members))
}

func (s *GoChatApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinRoomRequest
	if err := decodeOptional(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out, err := s.chat.Join(r.Context(), a, roomId, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, types.JoinResponse{
		Membership: chat.ToMembership(out.Membership),
		Room:       chat.ToRoom(out.Room),
		Joined:     out.Joined,
	})
}

func (s *GoChatApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	roomId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out, err := s.chat.Leave(r.Context(), a, roomId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, LeaveResponse{Left: out.Left, MemberCount: out.MemberCount})
}

func (s *GoChatApp) typing(w http.ResponseWriter, r *http.Request) {
	roomId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chat.Typing(r.Context(), a, roomId); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) postAnnouncement(w http.ResponseWriter, r *http.Request) {
	roomId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req MessageBodyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.chat.PostAnnouncement(r.Context(), a, roomId, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusCreated, chat.ToMessage(msg))
}

// parsePageQuery reads before_id, page_size and show_historical.
func parsePageQuery(r *http.Request, roomId int) (chat.PageQuery, bool) {
	q := chat.PageQuery{RoomId: roomId}
	query := r.URL.Query()

	if v := query.Get("before_id"); v != "" {
		beforeId, err := strconv.Atoi(v)
		if err != nil || beforeId < 1 {
			return q, false
		}
		q.BeforeId = beforeId
	}

	if v := query.Get("page_size"); v != "" {
		pageSize, err := strconv.Atoi(v)
		if err != nil || pageSize < 1 {
			return q, false
		}
		q.PageSize = pageSize
	}

	if v := query.Get("show_historical"); v != "" {
		historical, err := strconv.ParseBool(v)
		if err != nil {
			return q, false
		}
		q.ShowHistorical = historical
	}

	return q, true
}

func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	roomId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	q, ok := parsePageQuery(r, roomId)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	page, err := s.chat.GetPage(r.Context(), userId, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat.ToMessagePage(page))
}

func (s *GoChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId < 1 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.chat.SendMessage(r.Context(), a, req.RoomId, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusCreated, chat.ToMessage(msg))
}

func (s *GoChatApp) editMessage(w http.ResponseWriter, r *http.Request) {
	messageId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req MessageBodyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.chat.EditMessage(r.Context(), a, messageId, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusOK, chat.ToMessage(msg))
}

func (s *GoChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	messageId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a, ok := actor(r)
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chat.DeleteMessage(r.Context(), a, messageId); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(r.Context(), id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
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

	if err := s.cs.ServeConn(chat.ToUser(user), conn); err != nil {
		s.log.Println("error attaching connection:", err)
	}
}
