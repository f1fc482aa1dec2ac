package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"songbook/internal/app/songs"
	"songbook/internal/store"
)

type songRequest struct {
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       *string `json:"album"`
	Genre       string  `json:"genre"`
	Duration    *int    `json:"duration"`
	ReleaseYear *int    `json:"releaseYear"`
}

func (req songRequest) fields() songs.Fields {
	return songs.Fields{
		Title:       req.Title,
		Artist:      req.Artist,
		Album:       req.Album,
		Genre:       req.Genre,
		Duration:    req.Duration,
		ReleaseYear: req.ReleaseYear,
	}
}

// decodeSong reads and validates a song payload, writing a 400 on failure.
func decodeSong(w http.ResponseWriter, r *http.Request) (songs.Fields, bool) {
	var req songRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, msgInvalidJSON)
		return songs.Fields{}, false
	}
	fields := req.fields()
	if err := fields.Validate(); err != nil {
		writeFail(w, http.StatusBadRequest, songs.Reason(err))
		return songs.Fields{}, false
	}
	return fields, true
}

// songID parses the {id} path value. Malformed ids cannot name a song, so
// they are reported as not found.
func songID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeFail(w, http.StatusNotFound, msgSongNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleCreateSong(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	fields, ok := decodeSong(w, r)
	if !ok {
		return
	}

	song, err := s.songs.Create(r.Context(), caller.UserID, fields)
	if err != nil {
		writeInternal(w, r, err, "create song")
		return
	}

	writeSuccess(w, "song created", map[string]any{"id": song.ID})
}

func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	list, err := s.songs.Filter(r.Context(), caller.UserID, songs.Query{
		Search: query.Get("search"),
		Genre:  query.Get("genre"),
		Artist: query.Get("artist"),
	})
	if err != nil {
		writeInternal(w, r, err, "list songs")
		return
	}
	if list == nil {
		list = []store.Song{}
	}

	writeSuccess(w, "", map[string]any{"songs": list, "total": len(list)})
}

func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := songID(w, r)
	if !ok {
		return
	}

	song, err := s.songs.Get(r.Context(), caller.UserID, id)
	if err != nil {
		if errors.Is(err, store.ErrSongNotFound) {
			writeFail(w, http.StatusNotFound, msgSongNotFound)
			return
		}
		writeInternal(w, r, err, "get song")
		return
	}

	writeSuccess(w, "", map[string]any{"song": song})
}

func (s *Server) handleUpdateSong(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := songID(w, r)
	if !ok {
		return
	}
	fields, ok := decodeSong(w, r)
	if !ok {
		return
	}

	if _, err := s.songs.Update(r.Context(), caller.UserID, id, fields); err != nil {
		if errors.Is(err, store.ErrSongNotFound) {
			writeFail(w, http.StatusNotFound, msgSongNotFound)
			return
		}
		writeInternal(w, r, err, "update song")
		return
	}

	writeSuccess(w, "song updated", nil)
}

func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := songID(w, r)
	if !ok {
		return
	}

	deleted, err := s.songs.Delete(r.Context(), caller.UserID, id)
	if err != nil {
		writeInternal(w, r, err, "delete song")
		return
	}
	if !deleted {
		writeFail(w, http.StatusNotFound, msgSongNotFound)
		return
	}

	writeSuccess(w, "song deleted", nil)
}

func (s *Server) handleChartByGenre(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	chart, err := s.songs.ChartByGenre(r.Context(), caller.UserID)
	if err != nil {
		writeInternal(w, r, err, "genre chart")
		return
	}
	writeSuccess(w, "", map[string]any{"chartData": chart})
}

func (s *Server) handleChartByArtist(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	chart, err := s.songs.ChartByArtist(r.Context(), caller.UserID)
	if err != nil {
		writeInternal(w, r, err, "artist chart")
		return
	}
	writeSuccess(w, "", map[string]any{"chartData": chart})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	stats, err := s.songs.Statistics(r.Context(), caller.UserID)
	if err != nil {
		writeInternal(w, r, err, "song statistics")
		return
	}
	writeSuccess(w, "", stats)
}
