package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrSongNotFound signals a song that does not exist for the acting owner.
// Songs owned by someone else are reported the same way.
var ErrSongNotFound = errors.New("song not found")

// Song represents one catalog entry owned by a single user.
type Song struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"userId"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       *string   `json:"album"`
	Genre       string    `json:"genre"`
	Duration    int       `json:"duration"`
	ReleaseYear *int      `json:"releaseYear"`
	Cover       *string   `json:"cover"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SongChanges carries the mutable fields written by a full-replace update.
type SongChanges struct {
	Title       string
	Artist      string
	Album       *string
	Genre       string
	Duration    int
	ReleaseYear *int
}

// SongFilter constrains the results returned by ListSongs. Empty fields are ignored.
type SongFilter struct {
	// Keyword matches title, artist, album or genre as a case-insensitive substring.
	Keyword string
	// Genre is a case-insensitive exact match.
	Genre string
	// Artist is a case-insensitive substring match.
	Artist string
}

// ChartEntry is one bucket of a per-genre or per-artist song count.
type ChartEntry struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

const songColumns = `id, user_id, title, artist, album, genre, duration, release_year, cover, created_at, updated_at`

// CreateSong inserts a fully populated song record.
func (s *Store) CreateSong(ctx context.Context, song Song) (Song, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO songs (id, user_id, title, artist, album, genre, duration, release_year, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+songColumns,
		song.ID, song.OwnerID, song.Title, song.Artist, nullString(song.Album), song.Genre,
		song.Duration, nullInt(song.ReleaseYear), song.CreatedAt, song.UpdatedAt)

	created, err := scanSongRow(row)
	if err != nil {
		return Song{}, fmt.Errorf("insert song: %w", err)
	}
	return created, nil
}

// ListSongs returns the owner's songs matching filter, newest first.
func (s *Store) ListSongs(ctx context.Context, ownerID uuid.UUID, filter SongFilter) ([]Song, error) {
	args := []any{ownerID}
	clauses := []string{"user_id = $1"}

	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		args = append(args, "%"+escapeLike(keyword)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(title ILIKE $%d OR artist ILIKE $%d OR album ILIKE $%d OR genre ILIKE $%d)", n, n, n, n))
	}
	if genre := strings.TrimSpace(filter.Genre); genre != "" {
		args = append(args, genre)
		clauses = append(clauses, fmt.Sprintf("LOWER(genre) = LOWER($%d)", len(args)))
	}
	if artist := strings.TrimSpace(filter.Artist); artist != "" {
		args = append(args, "%"+escapeLike(artist)+"%")
		clauses = append(clauses, fmt.Sprintf("artist ILIKE $%d", len(args)))
	}

	query := `
		SELECT ` + songColumns + `
		FROM songs
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select songs: %w", err)
	}
	defer rows.Close()

	songs := []Song{}
	for rows.Next() {
		song, err := scanSongRow(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate songs: %w", err)
	}

	return songs, nil
}

// SongByID returns a single song owned by ownerID.
func (s *Store) SongByID(ctx context.Context, ownerID, id uuid.UUID) (Song, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+songColumns+`
		FROM songs
		WHERE id = $1 AND user_id = $2
	`, id, ownerID)

	song, err := scanSongRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Song{}, ErrSongNotFound
		}
		return Song{}, err
	}
	return song, nil
}

// UpdateSong overwrites every mutable field of the owner's song. The stored
// updated_at always moves forward, even when at is not later than the
// previous value.
func (s *Store) UpdateSong(ctx context.Context, ownerID, id uuid.UUID, changes SongChanges, at time.Time) (Song, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE songs
		SET title = $1, artist = $2, album = $3, genre = $4, duration = $5, release_year = $6,
		    updated_at = GREATEST($7, updated_at + INTERVAL '1 microsecond')
		WHERE id = $8 AND user_id = $9
		RETURNING `+songColumns,
		changes.Title, changes.Artist, nullString(changes.Album), changes.Genre, changes.Duration,
		nullInt(changes.ReleaseYear), at, id, ownerID)

	song, err := scanSongRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Song{}, ErrSongNotFound
		}
		return Song{}, fmt.Errorf("update song: %w", err)
	}
	return song, nil
}

// DeleteSong removes the owner's song and returns the deleted record.
func (s *Store) DeleteSong(ctx context.Context, ownerID, id uuid.UUID) (Song, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM songs
		WHERE id = $1 AND user_id = $2
		RETURNING `+songColumns,
		id, ownerID)

	song, err := scanSongRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Song{}, ErrSongNotFound
		}
		return Song{}, fmt.Errorf("delete song: %w", err)
	}
	return song, nil
}

// SetSongCover points the owner's song at a new cover file and returns the
// updated record together with the cover it replaced, if any.
func (s *Store) SetSongCover(ctx context.Context, ownerID, id uuid.UUID, cover string, at time.Time) (Song, *string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Song{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	var previous sql.NullString
	if err := tx.QueryRowContext(ctx, `
		SELECT cover
		FROM songs
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, id, ownerID).Scan(&previous); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Song{}, nil, ErrSongNotFound
		}
		return Song{}, nil, fmt.Errorf("lookup song cover: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE songs
		SET cover = $1, updated_at = GREATEST($2, updated_at + INTERVAL '1 microsecond')
		WHERE id = $3 AND user_id = $4
		RETURNING `+songColumns,
		cover, at, id, ownerID)

	song, err := scanSongRow(row)
	if err != nil {
		return Song{}, nil, fmt.Errorf("update song cover: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Song{}, nil, fmt.Errorf("commit tx: %w", err)
	}
	tx = nil

	if previous.Valid {
		return song, &previous.String, nil
	}
	return song, nil, nil
}

// GenreCounts groups the owner's songs by genre, largest bucket first.
func (s *Store) GenreCounts(ctx context.Context, ownerID uuid.UUID) ([]ChartEntry, error) {
	return s.countBy(ctx, ownerID, "genre")
}

// ArtistCounts groups the owner's songs by artist, largest bucket first.
func (s *Store) ArtistCounts(ctx context.Context, ownerID uuid.UUID) ([]ChartEntry, error) {
	return s.countBy(ctx, ownerID, "artist")
}

// column is never user supplied.
func (s *Store) countBy(ctx context.Context, ownerID uuid.UUID, column string) ([]ChartEntry, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %[1]s, COUNT(*)
		FROM songs
		WHERE user_id = $1
		GROUP BY %[1]s
		ORDER BY COUNT(*) DESC, %[1]s ASC`, column), ownerID)
	if err != nil {
		return nil, fmt.Errorf("count songs by %s: %w", column, err)
	}
	defer rows.Close()

	entries := []ChartEntry{}
	for rows.Next() {
		var e ChartEntry
		if err := rows.Scan(&e.Label, &e.Count); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", column, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return entries, nil
}

// SongStats returns the number of songs the owner has and their summed duration in seconds.
func (s *Store) SongStats(ctx context.Context, ownerID uuid.UUID) (int, int, error) {
	var count, total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(duration), 0)
		FROM songs
		WHERE user_id = $1
	`, ownerID).Scan(&count, &total); err != nil {
		return 0, 0, fmt.Errorf("song stats: %w", err)
	}
	return count, total, nil
}

type songScanner interface {
	Scan(dest ...any) error
}

func scanSongRow(scanner songScanner) (Song, error) {
	var (
		song        Song
		album       sql.NullString
		releaseYear sql.NullInt64
		cover       sql.NullString
	)

	if err := scanner.Scan(
		&song.ID,
		&song.OwnerID,
		&song.Title,
		&song.Artist,
		&album,
		&song.Genre,
		&song.Duration,
		&releaseYear,
		&cover,
		&song.CreatedAt,
		&song.UpdatedAt,
	); err != nil {
		return Song{}, fmt.Errorf("scan song: %w", err)
	}

	if album.Valid {
		song.Album = &album.String
	}
	if releaseYear.Valid {
		year := int(releaseYear.Int64)
		song.ReleaseYear = &year
	}
	if cover.Valid {
		song.Cover = &cover.String
	}
	return song, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
