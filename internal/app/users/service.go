package users

import (
	"context"
	"time"

	"github.com/google/uuid"

	"songbook/internal/auth"
	"songbook/internal/store"
)

// Store describes the persistence operations required by the user service.
type Store interface {
	CreateUser(ctx context.Context, name, username, password string) (uuid.UUID, error)
	Authenticate(ctx context.Context, username, password string) (store.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (store.User, error)
}

// Tokens issues bearer tokens for authenticated users.
type Tokens interface {
	Issue(id auth.Identity) (string, time.Time, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"authToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service exposes account workflows.
type Service interface {
	Register(ctx context.Context, name, username, password string) (uuid.UUID, error)
	Login(ctx context.Context, username, password string) (Session, error)
	Me(ctx context.Context, id auth.Identity) (store.User, error)
}

type service struct {
	store  Store
	tokens Tokens
}

// New wires a Service backed by the provided Store.
func New(store Store, tokens Tokens) Service {
	return &service{store: store, tokens: tokens}
}

func (s *service) Register(ctx context.Context, name, username, password string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	return s.store.CreateUser(ctx, name, username, password)
}

func (s *service) Login(ctx context.Context, username, password string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	user, err := s.store.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	token, expires, err := s.tokens.Issue(auth.Identity{UserID: user.ID, Username: user.Username})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires}, nil
}

func (s *service) Me(ctx context.Context, id auth.Identity) (store.User, error) {
	if err := ctx.Err(); err != nil {
		return store.User{}, err
	}
	return s.store.UserByID(ctx, id.UserID)
}
