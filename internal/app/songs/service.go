package songs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"songbook/internal/store"
)

// Store captures the persistence needs of the song catalog.
type Store interface {
	CreateSong(ctx context.Context, song store.Song) (store.Song, error)
	ListSongs(ctx context.Context, ownerID uuid.UUID, filter store.SongFilter) ([]store.Song, error)
	SongByID(ctx context.Context, ownerID, id uuid.UUID) (store.Song, error)
	UpdateSong(ctx context.Context, ownerID, id uuid.UUID, changes store.SongChanges, at time.Time) (store.Song, error)
	DeleteSong(ctx context.Context, ownerID, id uuid.UUID) (store.Song, error)
	GenreCounts(ctx context.Context, ownerID uuid.UUID) ([]store.ChartEntry, error)
	ArtistCounts(ctx context.Context, ownerID uuid.UUID) ([]store.ChartEntry, error)
	SongStats(ctx context.Context, ownerID uuid.UUID) (int, int, error)
}

// CoverRemover deletes the cover file referenced by a song. Removal is best
// effort; the result only reports whether a file went away.
type CoverRemover interface {
	DeleteFor(song store.Song) bool
}

// Query carries the optional list filters supplied by a caller. Genre wins
// over Artist, which wins over Search; blank values are treated as absent.
type Query struct {
	Search string
	Genre  string
	Artist string
}

// Statistics summarises an owner's catalog.
type Statistics struct {
	TotalSongs             int `json:"totalSongs"`
	TotalDuration          int `json:"totalDuration"`
	TotalDurationInMinutes int `json:"totalDurationInMinutes"`
}

// Service exposes the song catalog. Every operation is scoped to ownerID; a
// song owned by someone else behaves exactly like a missing one.
type Service interface {
	Create(ctx context.Context, ownerID uuid.UUID, fields Fields) (store.Song, error)
	List(ctx context.Context, ownerID uuid.UUID, search string) ([]store.Song, error)
	ListByGenre(ctx context.Context, ownerID uuid.UUID, genre string) ([]store.Song, error)
	ListByArtist(ctx context.Context, ownerID uuid.UUID, artist string) ([]store.Song, error)
	Filter(ctx context.Context, ownerID uuid.UUID, q Query) ([]store.Song, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (store.Song, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, fields Fields) (store.Song, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error)
	ChartByGenre(ctx context.Context, ownerID uuid.UUID) (map[string]int64, error)
	ChartByArtist(ctx context.Context, ownerID uuid.UUID) (map[string]int64, error)
	ChartEntriesByGenre(ctx context.Context, ownerID uuid.UUID) ([]store.ChartEntry, error)
	ChartEntriesByArtist(ctx context.Context, ownerID uuid.UUID) ([]store.ChartEntry, error)
	TotalDurationSeconds(ctx context.Context, ownerID uuid.UUID) (int, error)
	Statistics(ctx context.Context, ownerID uuid.UUID) (Statistics, error)
}

type service struct {
	store  Store
	covers CoverRemover
	now    func() time.Time
}

// New constructs a song catalog backed by the provided Store. Deleting a song
// removes its cover through covers.
func New(store Store, covers CoverRemover) Service {
	return &service{store: store, covers: covers, now: time.Now}
}

// Create persists a new song. Fields are expected to have passed Validate at
// the boundary; Create does not re-check them.
func (s *service) Create(ctx context.Context, ownerID uuid.UUID, fields Fields) (store.Song, error) {
	if err := ctx.Err(); err != nil {
		return store.Song{}, err
	}

	now := s.timestamp()
	return s.store.CreateSong(ctx, store.Song{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       fields.Title,
		Artist:      fields.Artist,
		Album:       optionalText(fields.Album),
		Genre:       fields.Genre,
		Duration:    deref(fields.Duration),
		ReleaseYear: fields.ReleaseYear,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID, search string) ([]store.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.ListSongs(ctx, ownerID, store.SongFilter{Keyword: strings.TrimSpace(search)})
}

// ListByGenre matches genre exactly, ignoring case. No song has a blank genre,
// so a blank argument yields nothing.
func (s *service) ListByGenre(ctx context.Context, ownerID uuid.UUID, genre string) ([]store.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(genre) == "" {
		return []store.Song{}, nil
	}
	return s.store.ListSongs(ctx, ownerID, store.SongFilter{Genre: genre})
}

// ListByArtist matches artist as a substring, ignoring case.
func (s *service) ListByArtist(ctx context.Context, ownerID uuid.UUID, artist string) ([]store.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.ListSongs(ctx, ownerID, store.SongFilter{Artist: artist})
}

func (s *service) Filter(ctx context.Context, ownerID uuid.UUID, q Query) ([]store.Song, error) {
	switch {
	case strings.TrimSpace(q.Genre) != "":
		return s.ListByGenre(ctx, ownerID, q.Genre)
	case strings.TrimSpace(q.Artist) != "":
		return s.ListByArtist(ctx, ownerID, q.Artist)
	default:
		return s.List(ctx, ownerID, q.Search)
	}
}

func (s *service) Get(ctx context.Context, ownerID, id uuid.UUID) (store.Song, error) {
	if err := ctx.Err(); err != nil {
		return store.Song{}, err
	}
	return s.store.SongByID(ctx, ownerID, id)
}

// Update replaces every mutable field; omitted optional fields are cleared.
// The cover is left alone.
func (s *service) Update(ctx context.Context, ownerID, id uuid.UUID, fields Fields) (store.Song, error) {
	if err := ctx.Err(); err != nil {
		return store.Song{}, err
	}
	return s.store.UpdateSong(ctx, ownerID, id, store.SongChanges{
		Title:       fields.Title,
		Artist:      fields.Artist,
		Album:       optionalText(fields.Album),
		Genre:       fields.Genre,
		Duration:    deref(fields.Duration),
		ReleaseYear: fields.ReleaseYear,
	}, s.timestamp())
}

// Delete reports false when the song does not exist for ownerID.
func (s *service) Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	song, err := s.store.DeleteSong(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, store.ErrSongNotFound) {
			return false, nil
		}
		return false, err
	}

	if song.Cover != nil && s.covers != nil {
		s.covers.DeleteFor(song)
	}
	return true, nil
}

func (s *service) ChartByGenre(ctx context.Context, ownerID uuid.UUID) (map[string]int64, error) {
	entries, err := s.ChartEntriesByGenre(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return chartMap(entries), nil
}

func (s *service) ChartByArtist(ctx context.Context, ownerID uuid.UUID) (map[string]int64, error) {
	entries, err := s.ChartEntriesByArtist(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return chartMap(entries), nil
}

// ChartEntriesByGenre is ordered by count descending, then genre ascending.
func (s *service) ChartEntriesByGenre(ctx context.Context, ownerID uuid.UUID) ([]store.ChartEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.GenreCounts(ctx, ownerID)
}

// ChartEntriesByArtist is ordered by count descending, then artist ascending.
func (s *service) ChartEntriesByArtist(ctx context.Context, ownerID uuid.UUID) ([]store.ChartEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.ArtistCounts(ctx, ownerID)
}

func (s *service) TotalDurationSeconds(ctx context.Context, ownerID uuid.UUID) (int, error) {
	stats, err := s.Statistics(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return stats.TotalDuration, nil
}

func (s *service) Statistics(ctx context.Context, ownerID uuid.UUID) (Statistics, error) {
	if err := ctx.Err(); err != nil {
		return Statistics{}, err
	}
	count, total, err := s.store.SongStats(ctx, ownerID)
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{
		TotalSongs:             count,
		TotalDuration:          total,
		TotalDurationInMinutes: total / 60,
	}, nil
}

// timestamp matches the microsecond precision of the database.
func (s *service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func chartMap(entries []store.ChartEntry) map[string]int64 {
	m := make(map[string]int64, len(entries))
	for _, e := range entries {
		m[e.Label] = e.Count
	}
	return m
}

func optionalText(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
