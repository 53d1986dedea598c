package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/ravenchat/internal/connect"
	"github.com/npezzotti/ravenchat/internal/database"
	"github.com/npezzotti/ravenchat/internal/server"
	"github.com/npezzotti/ravenchat/internal/types"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Questions []string `json:"questions"`
	Answers   []string `json:"answers"`
}

type AttemptRequest struct {
	TargetUsername string   `json:"target_username"`
	Answers        []string `json:"answers"`
}

type SendMessageRequest struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", zap.Error(err))
	}
}

// writeError renders err as an ApiError. Unexpected errors are logged.
func (s *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errResp := errorFrom(err)
	if errResp.StatusCode == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	if errResp.StatusCode == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(errResp.RetryAfter))
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

// requester returns the caller stored by requireSession, answering 401 when
// the route was mounted without it.
func (s *App) requester(w http.ResponseWriter, r *http.Request) (database.User, bool) {
	user, ok := Requester(r.Context())
	if !ok {
		s.unauthorized(w)
	}
	return user, ok
}

func toUser(u database.User) types.User {
	return types.User{
		Id:        u.Id,
		Username:  u.Username,
		Questions: u.Questions,
		Poem:      u.Poem,
		CreatedAt: u.CreatedAt,
	}
}

func toConnection(c database.Connection, self string, other database.User) types.Connection {
	return types.Connection{
		Id:         c.Id,
		ExternalId: c.ExternalId,
		RoomId:     server.RoomID(self, other.Username),
		User:       toUser(other),
		CreatedAt:  c.CreatedAt,
	}
}

func toMessage(m database.Message, names map[int]string) types.Message {
	return types.Message{
		Id:        m.Id,
		Sender:    names[m.SenderId],
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Read:      m.Read,
	}
}

func (s *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *App) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.svc.Register(r.Context(), connect.RegisterParams{
		Username:  req.Username,
		Password:  req.Password,
		Questions: req.Questions,
		Answers:   req.Answers,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusCreated, toUser(user))
}

func (s *App) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		// unknown users and bad passwords look the same to the caller
		if errors.Is(err, connect.ErrNotFound) {
			err = connect.ErrInvalidCredentials
		}
		s.writeError(w, r, err)
		return
	}

	u := toUser(user)
	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))
	s.writeJson(w, http.StatusOK, u)
}

func (s *App) session(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requester(w, r)
	if !ok {
		return
	}

	s.writeJson(w, http.StatusOK, toUser(user))
}

func (s *App) logout(w http.ResponseWriter, _ *http.Request) {
	// overwrite the cookie with an expired one so the browser drops it
	http.SetCookie(w, createJwtCookie("", -defaultJwtExpiration))
	w.WriteHeader(http.StatusNoContent)
}

func (s *App) listUsers(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requester(w, r)
	if !ok {
		return
	}

	users, err := s.svc.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]types.User, 0, len(users))
	for _, u := range users {
		if u.Id == user.Id {
			continue
		}
		resp = append(resp, toUser(u))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *App) attemptConnection(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requester(w, r)
	if !ok {
		return
	}

	var req AttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	result, err := s.svc.AttemptConnection(r.Context(), connect.AttemptRequest{
		RequesterId:    user.Id,
		TargetUsername: req.TargetUsername,
		Answers:        req.Answers,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := types.AttemptResult{
		Success:        result.Success,
		CorrectAnswers: result.CorrectAnswers,
		PitchLevel:     result.PitchLevel,
		CrypticMessage: result.CrypticMessage,
		Message:        result.Message,
	}
	if result.Connection != nil {
		target := database.User{
			Id:       result.Connection.Other(user.Id),
			Username: req.TargetUsername,
		}
		conn := toConnection(*result.Connection, user.Username, target)
		resp.Connection = &conn
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *App) listConnections(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requester(w, r)
	if !ok {
		return
	}

	contacts, err := s.svc.ListConnections(r.Context(), user.Id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]types.Connection, 0, len(contacts))
	for _, c := range contacts {
		resp = append(resp, toConnection(c.Connection, user.Username, c.User))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *App) getMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requester(w, r)
	if !ok {
		return
	}

	with := r.URL.Query().Get("with")
	if with == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msgs, err := s.svc.ListMessages(r.Context(), user.Id, with)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// ListMessages only succeeds for a connection between the two users, so
	// every sender is one of them.
	names := map[int]string{user.Id: user.Username}
	resp := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := names[m.SenderId]; !ok {
			names[m.SenderId] = with
		}
		resp = append(resp, toMessage(m, names))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *App) sendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requester(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.svc.SendMessage(r.Context(), user.Id, req.Recipient, req.Content, server.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJson(w, http.StatusCreated, toMessage(msg, map[int]string{user.Id: user.Username}))
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requester(w, r)
	if !ok {
		return
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
		s.log.Info("error upgrading connection", zap.Error(err))
		return
	}

	client := server.NewClient(user.Id, user.Username, conn, s.cs, s.log)
	if !s.cs.RegisterClient(client) {
		s.log.Info("chat server stopped, rejecting session", zap.String("username", user.Username))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
