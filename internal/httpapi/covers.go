package httpapi

import (
	"errors"
	"net/http"

	"songbook/internal/covers"
	"songbook/internal/store"
)

const coverField = "coverFile"

// multipartOverhead leaves room for boundaries and headers around the file.
const multipartOverhead = 1 << 20

func (s *Server) handleUploadCover(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := songID(w, r)
	if !ok {
		return
	}

	maxBytes := s.covers.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	upload := covers.Upload{}
	file, header, err := r.FormFile(coverField)
	switch {
	case err == nil:
		defer file.Close()
		upload = covers.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}
	case errors.Is(err, http.ErrMissingFile):
		// Left empty; the manager reports it.
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFail(w, http.StatusBadRequest, covers.Reason(covers.TooLarge(maxBytes)))
			return
		}
		writeFail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	song, err := s.covers.Upload(r.Context(), caller.UserID, id, upload)
	if err != nil {
		switch {
		case errors.Is(err, covers.ErrInvalidCover):
			writeFail(w, http.StatusBadRequest, covers.Reason(err))
		case errors.Is(err, store.ErrSongNotFound):
			writeFail(w, http.StatusNotFound, msgSongNotFound)
		case errors.Is(err, covers.ErrStorage):
			writeFail(w, http.StatusInternalServerError, "failed to upload cover")
		default:
			writeInternal(w, r, err, "upload cover")
		}
		return
	}

	writeSuccess(w, "cover uploaded", map[string]any{"cover": song.Cover})
}

func (s *Server) handleServeCover(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	f, info, err := s.covers.Open(name)
	if err != nil {
		if errors.Is(err, covers.ErrNotFound) {
			writeFail(w, http.StatusNotFound, "cover not found")
			return
		}
		writeInternal(w, r, err, "open cover")
		return
	}
	defer f.Close()

	w.Header().Set("Cache-Control", "private, max-age=300")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
