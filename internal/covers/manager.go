package covers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"songbook/internal/store"
)

// DefaultMaxBytes is the upload limit used when none is configured.
const DefaultMaxBytes int64 = 5 << 20

var (
	// ErrInvalidCover is the parent of every rejection caused by the upload itself.
	ErrInvalidCover = errors.New("invalid cover")
	// ErrEmptyFile is returned for a missing or zero-length upload.
	ErrEmptyFile = fmt.Errorf("%w: cover file must not be empty", ErrInvalidCover)
	// ErrUnsupportedType is returned when the content type is not an accepted image format.
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file format, use JPG, PNG, GIF or WebP", ErrInvalidCover)
	// ErrFileTooLarge is returned when the upload exceeds the configured limit.
	ErrFileTooLarge = fmt.Errorf("%w: file too large", ErrInvalidCover)
	// ErrStorage indicates the file could not be written.
	ErrStorage = errors.New("cover storage failed")
)

var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// Upload is a cover file as received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// IsPresent reports whether the upload carries any bytes.
func IsPresent(u Upload) bool {
	return u.Body != nil && u.Size > 0
}

// IsAllowedType reports whether the declared content type is JPEG, PNG, GIF or WebP.
func IsAllowedType(u Upload) bool {
	ct := strings.ToLower(strings.TrimSpace(u.ContentType))
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	_, ok := allowedTypes[ct]
	return ok
}

// IsWithinSize reports whether the upload is no larger than max bytes.
func IsWithinSize(u Upload, max int64) bool {
	return u.Size <= max
}

// Reason strips the sentinel prefix from a cover rejection so it can be shown
// to a user.
func Reason(err error) string {
	return strings.TrimPrefix(err.Error(), ErrInvalidCover.Error()+": ")
}

// SongStore is the subset of persistence the manager needs.
type SongStore interface {
	SongByID(ctx context.Context, ownerID, id uuid.UUID) (store.Song, error)
	SetSongCover(ctx context.Context, ownerID, id uuid.UUID, cover string, at time.Time) (store.Song, *string, error)
}

// Manager keeps cover files on disk in step with the cover column of songs.
type Manager struct {
	storage  Storage
	songs    SongStore
	maxBytes int64
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager wires a cover manager. A non-positive maxBytes selects DefaultMaxBytes.
func NewManager(storage Storage, songs SongStore, maxBytes int64, logger zerolog.Logger) *Manager {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Manager{
		storage:  storage,
		songs:    songs,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "covers").Logger(),
		now:      time.Now,
	}
}

// MaxBytes returns the configured upload limit.
func (m *Manager) MaxBytes() int64 {
	return m.maxBytes
}

// ValidateImage reports the first failing check: presence, then type, then size.
func (m *Manager) ValidateImage(u Upload) error {
	switch {
	case !IsPresent(u):
		return ErrEmptyFile
	case !IsAllowedType(u):
		return ErrUnsupportedType
	case !IsWithinSize(u, m.maxBytes):
		return m.tooLarge()
	}
	return nil
}

func (m *Manager) tooLarge() error {
	return TooLarge(m.maxBytes)
}

// TooLarge returns ErrFileTooLarge annotated with the limit, e.g.
// "file too large, maximum is 5.0 MiB".
func TooLarge(max int64) error {
	return fmt.Errorf("%w, maximum is %s", ErrFileTooLarge, humanize.IBytes(uint64(max)))
}

// Store writes the upload under the deterministic cover name for entityID and
// returns that name. An existing file with the same name is overwritten.
func (m *Manager) Store(entityID uuid.UUID, u Upload) (string, error) {
	name := NameFor(entityID, SongCoverPrefix, u.Filename)
	body := &cappedReader{r: u.Body, remaining: m.maxBytes}
	if err := m.storage.Save(name, body); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return "", m.tooLarge()
		}
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return name, nil
}

// Replace points the song at filename and refreshes its updatedAt. The
// previous file, when different, is removed after the change is committed.
func (m *Manager) Replace(ctx context.Context, ownerID, songID uuid.UUID, filename string) (store.Song, error) {
	at := m.now().UTC().Truncate(time.Microsecond)
	song, previous, err := m.songs.SetSongCover(ctx, ownerID, songID, filename, at)
	if err != nil {
		return store.Song{}, err
	}

	if previous != nil && *previous != "" && *previous != filename {
		m.remove(*previous, songID)
	}
	return song, nil
}

// DeleteFor removes the cover referenced by song. Failures are logged and
// reported as false; they never abort the caller.
func (m *Manager) DeleteFor(song store.Song) bool {
	if song.Cover == nil || *song.Cover == "" {
		return false
	}
	return m.remove(*song.Cover, song.ID)
}

// Upload runs the full cover flow for a song: validate, confirm the song
// exists for ownerID, write the file, then swap the reference.
func (m *Manager) Upload(ctx context.Context, ownerID, songID uuid.UUID, u Upload) (store.Song, error) {
	if err := ctx.Err(); err != nil {
		return store.Song{}, err
	}
	if err := m.ValidateImage(u); err != nil {
		return store.Song{}, err
	}
	if _, err := m.songs.SongByID(ctx, ownerID, songID); err != nil {
		return store.Song{}, err
	}

	name, err := m.Store(songID, u)
	if err != nil {
		m.logger.Error().Err(err).Str("song_id", songID.String()).Msg("store cover")
		return store.Song{}, err
	}

	song, err := m.Replace(ctx, ownerID, songID, name)
	if err != nil {
		if errors.Is(err, store.ErrSongNotFound) {
			// Deleted between lookup and swap; nothing references the new file.
			m.remove(name, songID)
		}
		return store.Song{}, err
	}

	m.logger.Info().
		Str("song_id", songID.String()).
		Str("cover", name).
		Str("size", humanize.IBytes(uint64(u.Size))).
		Msg("cover uploaded")
	return song, nil
}

// Open returns a stored cover for streaming. Names that are not bare file
// names are reported as ErrNotFound.
func (m *Manager) Open(filename string) (io.ReadSeekCloser, os.FileInfo, error) {
	if !IsBareName(filename) {
		return nil, nil, ErrNotFound
	}
	f, info, err := m.storage.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	return f, info, nil
}

func (m *Manager) remove(name string, songID uuid.UUID) bool {
	if err := m.storage.Remove(name); err != nil {
		event := m.logger.Warn()
		if errors.Is(err, ErrNotFound) {
			event = m.logger.Debug()
		}
		event.Err(err).Str("song_id", songID.String()).Str("cover", name).Msg("remove cover")
		return false
	}
	return true
}

var errBodyTooLarge = errors.New("body exceeds limit")

// cappedReader fails once more than remaining bytes are read, so a client
// that under-declares its size cannot replace a file with an oversize one.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, errBodyTooLarge
	}
	return n, err
}
