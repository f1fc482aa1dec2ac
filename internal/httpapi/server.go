package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"songbook/internal/app/songs"
	"songbook/internal/app/users"
	"songbook/internal/auth"
	"songbook/internal/covers"
	"songbook/internal/http/middleware"
	"songbook/internal/logging"
	"songbook/internal/store"
)

const (
	msgNotAuthenticated = "user is not authenticated"
	msgSongNotFound     = "song not found"
	msgInvalidJSON      = "invalid JSON payload"
	msgInternal         = "internal server error"
)

// UserService captures the account operations needed by the HTTP handlers.
type UserService interface {
	Register(ctx context.Context, name, username, password string) (uuid.UUID, error)
	Login(ctx context.Context, username, password string) (users.Session, error)
	Me(ctx context.Context, id auth.Identity) (store.User, error)
}

// SongService coordinates catalog operations for the signed-in user.
type SongService interface {
	Create(ctx context.Context, ownerID uuid.UUID, fields songs.Fields) (store.Song, error)
	Filter(ctx context.Context, ownerID uuid.UUID, q songs.Query) ([]store.Song, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (store.Song, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, fields songs.Fields) (store.Song, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error)
	ChartByGenre(ctx context.Context, ownerID uuid.UUID) (map[string]int64, error)
	ChartByArtist(ctx context.Context, ownerID uuid.UUID) (map[string]int64, error)
	Statistics(ctx context.Context, ownerID uuid.UUID) (songs.Statistics, error)
}

// CoverService stores and serves song cover images.
type CoverService interface {
	Upload(ctx context.Context, ownerID, songID uuid.UUID, u covers.Upload) (store.Song, error)
	Open(filename string) (io.ReadSeekCloser, os.FileInfo, error)
	MaxBytes() int64
}

// TokenParser resolves a bearer token into the caller's identity.
type TokenParser interface {
	Parse(raw string) (auth.Identity, error)
}

// Server wires HTTP handlers to the underlying services.
type Server struct {
	users       UserService
	songs       SongService
	covers      CoverService
	tokens      TokenParser
	authLimiter *middleware.RateLimiter
}

// Option customises a Server.
type Option func(*Server)

// WithAuthRateLimit throttles the register and login endpoints.
func WithAuthRateLimit(l *middleware.RateLimiter) Option {
	return func(s *Server) { s.authLimiter = l }
}

// New configures a Server.
func New(users UserService, songs SongService, covers CoverService, tokens TokenParser, opts ...Option) *Server {
	s := &Server{users: users, songs: songs, covers: covers, tokens: tokens}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes exposes the HTTP handlers for accounts and the song catalog.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.Handle("POST /api/auth/register", s.limited(http.HandlerFunc(s.handleRegister)))
	mux.Handle("POST /api/auth/login", s.limited(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("GET /api/users/me", s.handleMe)

	mux.HandleFunc("POST /api/songs", s.handleCreateSong)
	mux.HandleFunc("GET /api/songs", s.handleListSongs)
	mux.HandleFunc("GET /api/songs/statistics", s.handleStatistics)
	mux.HandleFunc("GET /api/songs/charts/genre", s.handleChartByGenre)
	mux.HandleFunc("GET /api/songs/charts/artist", s.handleChartByArtist)
	mux.HandleFunc("GET /api/songs/cover/{filename}", s.handleServeCover)
	mux.HandleFunc("GET /api/songs/{id}", s.handleGetSong)
	mux.HandleFunc("PUT /api/songs/{id}", s.handleUpdateSong)
	mux.HandleFunc("DELETE /api/songs/{id}", s.handleDeleteSong)
	mux.HandleFunc("POST /api/songs/{id}/cover", s.handleUploadCover)

	return s.identify(mux)
}

func (s *Server) limited(h http.Handler) http.Handler {
	if s.authLimiter == nil {
		return h
	}
	return s.authLimiter.Middleware(h)
}

// identify attaches the caller's identity to the request when a valid bearer
// token is present. Requests without one continue anonymously; handlers that
// need an identity reject them.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := parseBearerToken(r.Header.Get("Authorization"))
		if token != "" && s.tokens != nil {
			id, err := s.tokens.Parse(token)
			if err == nil {
				ctx := auth.WithIdentity(r.Context(), id)
				ctx = logging.WithUserID(ctx, id.UserID.String())
				r = r.WithContext(ctx)
			} else {
				logging.WithContext(r.Context()).Debug().Err(err).Msg("rejected bearer token")
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireIdentity writes a 403 and reports false when the request is anonymous.
func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusForbidden, msgNotAuthenticated)
		return auth.Identity{}, false
	}
	return id, true
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: message, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: "fail", Message: message})
}

func writeInternal(w http.ResponseWriter, r *http.Request, err error, what string) {
	logging.WithContext(r.Context()).Error().Err(err).Msg(what)
	writeFail(w, http.StatusInternalServerError, msgInternal)
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

func parseBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type meResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}
