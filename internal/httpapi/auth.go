package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"songbook/internal/store"
)

type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	id, err := s.users.Register(r.Context(), req.Name, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUserExists):
			writeFail(w, http.StatusConflict, "user already exists")
		case errors.Is(err, store.ErrInvalidUser):
			writeFail(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), store.ErrInvalidUser.Error()+": "))
		default:
			writeInternal(w, r, err, "register user")
		}
		return
	}

	writeSuccess(w, "user registered", map[string]any{"id": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	session, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeFail(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		writeInternal(w, r, err, "login")
		return
	}

	writeSuccess(w, "login successful", session)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	user, err := s.users.Me(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeFail(w, http.StatusForbidden, msgNotAuthenticated)
			return
		}
		writeInternal(w, r, err, "load current user")
		return
	}

	writeSuccess(w, "", map[string]any{"user": meResponse{
		ID:        user.ID,
		Name:      user.Name,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	}})
}
