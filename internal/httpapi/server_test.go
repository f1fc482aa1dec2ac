package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"songbook/internal/app/songs"
	"songbook/internal/app/users"
	"songbook/internal/auth"
	"songbook/internal/covers"
	"songbook/internal/http/middleware"
	"songbook/internal/store"
)

const testSecret = "0123456789abcdef-http"

type stubUserService struct {
	registerErr error
	loginErr    error
	user        store.User
}

func (s *stubUserService) Register(context.Context, string, string, string) (uuid.UUID, error) {
	if s.registerErr != nil {
		return uuid.Nil, s.registerErr
	}
	return s.user.ID, nil
}

func (s *stubUserService) Login(context.Context, string, string) (users.Session, error) {
	if s.loginErr != nil {
		return users.Session{}, s.loginErr
	}
	return users.Session{Token: "token", ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func (s *stubUserService) Me(_ context.Context, id auth.Identity) (store.User, error) {
	if id.UserID != s.user.ID {
		return store.User{}, store.ErrUserNotFound
	}
	return s.user, nil
}

type stubSongService struct {
	song      store.Song
	getErr    error
	updateErr error
	deleted   bool
	list      []store.Song
	stats     songs.Statistics
	chart     map[string]int64

	lastOwner  uuid.UUID
	lastID     uuid.UUID
	lastFields songs.Fields
	lastQuery  songs.Query
	calls      int
}

func (s *stubSongService) Create(_ context.Context, owner uuid.UUID, f songs.Fields) (store.Song, error) {
	s.calls++
	s.lastOwner, s.lastFields = owner, f
	return s.song, nil
}

func (s *stubSongService) Filter(_ context.Context, owner uuid.UUID, q songs.Query) ([]store.Song, error) {
	s.calls++
	s.lastOwner, s.lastQuery = owner, q
	return s.list, nil
}

func (s *stubSongService) Get(_ context.Context, owner, id uuid.UUID) (store.Song, error) {
	s.calls++
	s.lastOwner, s.lastID = owner, id
	return s.song, s.getErr
}

func (s *stubSongService) Update(_ context.Context, owner, id uuid.UUID, f songs.Fields) (store.Song, error) {
	s.calls++
	s.lastOwner, s.lastID, s.lastFields = owner, id, f
	return s.song, s.updateErr
}

func (s *stubSongService) Delete(_ context.Context, owner, id uuid.UUID) (bool, error) {
	s.calls++
	s.lastOwner, s.lastID = owner, id
	return s.deleted, nil
}

func (s *stubSongService) ChartByGenre(_ context.Context, owner uuid.UUID) (map[string]int64, error) {
	s.calls++
	return s.chart, nil
}

func (s *stubSongService) ChartByArtist(_ context.Context, owner uuid.UUID) (map[string]int64, error) {
	s.calls++
	return s.chart, nil
}

func (s *stubSongService) Statistics(_ context.Context, owner uuid.UUID) (songs.Statistics, error) {
	s.calls++
	return s.stats, nil
}

type stubCoverService struct {
	dir        string
	uploadErr  error
	song       store.Song
	lastUpload covers.Upload
	lastBody   []byte
	calls      int
}

func (s *stubCoverService) Upload(_ context.Context, _, _ uuid.UUID, u covers.Upload) (store.Song, error) {
	s.calls++
	s.lastUpload = u
	if u.Body != nil {
		s.lastBody, _ = io.ReadAll(u.Body)
	}
	return s.song, s.uploadErr
}

func (s *stubCoverService) Open(name string) (io.ReadSeekCloser, os.FileInfo, error) {
	if !covers.IsBareName(name) {
		return nil, nil, covers.ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, nil, covers.ErrNotFound
	}
	info, _ := f.Stat()
	return f, info, nil
}

func (s *stubCoverService) MaxBytes() int64 { return 1 << 10 }

type testEnv struct {
	server *Server
	users  *stubUserService
	songs  *stubSongService
	covers *stubCoverService
	tokens *auth.TokenManager
	caller auth.Identity
}

func newTestServer(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		users:  &stubUserService{user: store.User{ID: uuid.New(), Name: "John", Username: "lennon"}},
		songs:  &stubSongService{},
		covers: &stubCoverService{dir: t.TempDir()},
		tokens: auth.NewTokenManager(testSecret, time.Hour),
	}
	env.caller = auth.Identity{UserID: env.users.user.ID, Username: "lennon"}
	env.server = New(env.users, env.songs, env.covers, env.tokens, opts...)
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	if authed {
		token, _, err := e.tokens.Issue(e.caller)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Routes().ServeHTTP(rr, req)
	return rr
}

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const validSong = `{"title":"Imagine","artist":"John Lennon","album":"Imagine","genre":"Pop","duration":180,"releaseYear":1971}`

func TestHealth(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), false)
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rr.Code, rr.Body.String())
	}
}

func TestAnonymousRequestsAreForbidden(t *testing.T) {
	id := uuid.NewString()
	routes := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/songs", validSong},
		{http.MethodGet, "/api/songs", ""},
		{http.MethodGet, "/api/songs/" + id, ""},
		{http.MethodGet, "/api/songs/not-a-uuid", ""},
		{http.MethodPut, "/api/songs/" + id, validSong},
		{http.MethodDelete, "/api/songs/" + id, ""},
		{http.MethodGet, "/api/songs/charts/genre", ""},
		{http.MethodGet, "/api/songs/charts/artist", ""},
		{http.MethodGet, "/api/songs/statistics", ""},
		{http.MethodPost, "/api/songs/" + id + "/cover", ""},
		{http.MethodGet, "/api/users/me", ""},
	}

	for _, rt := range routes {
		env := newTestServer(t)
		req := jsonRequest(rt.method, rt.path, rt.body)
		rr := env.do(t, req, false)
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s %s: status %d, want 403", rt.method, rt.path, rr.Code)
			continue
		}
		if resp := decode(t, rr); resp.Status != "fail" || resp.Message != "user is not authenticated" {
			t.Errorf("%s %s: unexpected body %+v", rt.method, rt.path, resp)
		}
		if env.songs.calls != 0 || env.covers.calls != 0 {
			t.Errorf("%s %s: service reached without identity", rt.method, rt.path)
		}
	}
}

func TestInvalidTokenIsAnonymous(t *testing.T) {
	env := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rr := env.do(t, req, false)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rr.Code)
	}
}

func TestCreateSong(t *testing.T) {
	env := newTestServer(t)
	env.songs.song = store.Song{ID: uuid.New()}

	rr := env.do(t, jsonRequest(http.MethodPost, "/api/songs", validSong), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode(t, rr)
	var data struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.ID != env.songs.song.ID {
		t.Fatalf("unexpected data %s (%v)", resp.Data, err)
	}
	if env.songs.lastOwner != env.caller.UserID {
		t.Fatalf("song created for wrong owner")
	}
	if env.songs.lastFields.Title != "Imagine" || *env.songs.lastFields.Duration != 180 {
		t.Fatalf("fields not forwarded: %+v", env.songs.lastFields)
	}
}

func TestCreateSongValidation(t *testing.T) {
	tests := []struct {
		name, body, message string
	}{
		{"missing title", `{"artist":"a","genre":"g","duration":10}`, "title is required"},
		{"missing artist", `{"title":"t","genre":"g","duration":10}`, "artist is required"},
		{"missing genre", `{"title":"t","artist":"a","duration":10}`, "genre is required"},
		{"zero duration", `{"title":"t","artist":"a","genre":"g","duration":0}`, "duration must be between 1 and 7200 seconds"},
		{"long duration", `{"title":"t","artist":"a","genre":"g","duration":7201}`, "duration must be between 1 and 7200 seconds"},
		{"old year", `{"title":"t","artist":"a","genre":"g","duration":10,"releaseYear":1899}`, "release year must be between 1900"},
		{"bad json", `{"title":`, "invalid JSON payload"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			env := newTestServer(t)
			rr := env.do(t, jsonRequest(http.MethodPost, "/api/songs", tc.body), true)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", rr.Code)
			}
			if resp := decode(t, rr); !strings.HasPrefix(resp.Message, tc.message) {
				t.Fatalf("message %q, want prefix %q", resp.Message, tc.message)
			}
			if env.songs.calls != 0 {
				t.Fatalf("service must not be called on invalid input")
			}
		})
	}
}

func TestListSongsPassesFilters(t *testing.T) {
	env := newTestServer(t)
	env.songs.list = []store.Song{{ID: uuid.New(), Title: "Imagine"}}

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/songs?search=im&genre=Pop&artist=len", nil), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	want := songs.Query{Search: "im", Genre: "Pop", Artist: "len"}
	if env.songs.lastQuery != want {
		t.Fatalf("query = %+v, want %+v", env.songs.lastQuery, want)
	}
	var data struct {
		Songs []store.Song `json:"songs"`
		Total int          `json:"total"`
	}
	if err := json.Unmarshal(decode(t, rr).Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Total != 1 || len(data.Songs) != 1 || data.Songs[0].Title != "Imagine" {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestListSongsEmptyIsArray(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/songs", nil), true)
	if !strings.Contains(rr.Body.String(), `"songs":[]`) {
		t.Fatalf("expected empty array, got %s", rr.Body.String())
	}
}

func TestGetSong(t *testing.T) {
	env := newTestServer(t)
	env.songs.song = store.Song{ID: uuid.New(), Title: "Imagine"}

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/songs/"+env.songs.song.ID.String(), nil), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if env.songs.lastID != env.songs.song.ID || env.songs.lastOwner != env.caller.UserID {
		t.Fatalf("wrong lookup: id=%s owner=%s", env.songs.lastID, env.songs.lastOwner)
	}
}

func TestSongNotFoundMapping(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name string
		req  *http.Request
		prep func(*stubSongService)
	}{
		{"malformed id", httptest.NewRequest(http.MethodGet, "/api/songs/42", nil), func(*stubSongService) {}},
		{"missing on get", httptest.NewRequest(http.MethodGet, "/api/songs/"+id, nil), func(s *stubSongService) { s.getErr = store.ErrSongNotFound }},
		{"missing on update", jsonRequest(http.MethodPut, "/api/songs/"+id, validSong), func(s *stubSongService) { s.updateErr = store.ErrSongNotFound }},
		{"missing on delete", httptest.NewRequest(http.MethodDelete, "/api/songs/"+id, nil), func(s *stubSongService) { s.deleted = false }},
		{"malformed id on cover", httptest.NewRequest(http.MethodPost, "/api/songs/xyz/cover", nil), func(*stubSongService) {}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			env := newTestServer(t)
			tc.prep(env.songs)
			rr := env.do(t, tc.req, true)
			if rr.Code != http.StatusNotFound {
				t.Fatalf("status %d, want 404", rr.Code)
			}
			if resp := decode(t, rr); resp.Message != "song not found" {
				t.Fatalf("message %q", resp.Message)
			}
		})
	}
}

func TestUpdateAndDeleteSong(t *testing.T) {
	env := newTestServer(t)
	id := uuid.New()
	env.songs.deleted = true

	rr := env.do(t, jsonRequest(http.MethodPut, "/api/songs/"+id.String(), validSong), true)
	if rr.Code != http.StatusOK || env.songs.lastID != id {
		t.Fatalf("update: status %d id %s", rr.Code, env.songs.lastID)
	}

	rr = env.do(t, jsonRequest(http.MethodPut, "/api/songs/"+id.String(), `{"title":"t","artist":"a","genre":"g"}`), true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("update without duration: status %d, want 400", rr.Code)
	}

	rr = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/songs/"+id.String(), nil), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rr.Code)
	}
}

func TestChartsAndStatistics(t *testing.T) {
	env := newTestServer(t)
	env.songs.chart = map[string]int64{"Pop": 1}
	env.songs.stats = songs.Statistics{TotalSongs: 2, TotalDuration: 300, TotalDurationInMinutes: 5}

	for _, path := range []string{"/api/songs/charts/genre", "/api/songs/charts/artist"} {
		rr := env.do(t, httptest.NewRequest(http.MethodGet, path, nil), true)
		var data struct {
			ChartData map[string]int64 `json:"chartData"`
		}
		if err := json.Unmarshal(decode(t, rr).Data, &data); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if data.ChartData["Pop"] != 1 {
			t.Fatalf("%s: chart = %v", path, data.ChartData)
		}
	}

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/songs/statistics", nil), true)
	var stats songs.Statistics
	if err := json.Unmarshal(decode(t, rr).Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats != env.songs.stats {
		t.Fatalf("stats = %+v", stats)
	}
}

func multipartRequest(t *testing.T, path, field, filename, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(body)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadCover(t *testing.T) {
	env := newTestServer(t)
	id := uuid.New()
	name := "song_cover_" + id.String() + ".png"
	env.covers.song = store.Song{ID: id, Cover: &name}

	req := multipartRequest(t, "/api/songs/"+id.String()+"/cover", "coverFile", "front.png", "image/png", []byte("png-bytes"))
	rr := env.do(t, req, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	u := env.covers.lastUpload
	if u.Filename != "front.png" || u.ContentType != "image/png" || u.Size != 9 || string(env.covers.lastBody) != "png-bytes" {
		t.Fatalf("unexpected upload %+v body %q", u, env.covers.lastBody)
	}
	var data struct {
		Cover string `json:"cover"`
	}
	if err := json.Unmarshal(decode(t, rr).Data, &data); err != nil || data.Cover != name {
		t.Fatalf("cover = %q (%v)", data.Cover, err)
	}
}

func TestUploadCoverErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"empty", covers.ErrEmptyFile, http.StatusBadRequest, "cover file must not be empty"},
		{"type", covers.ErrUnsupportedType, http.StatusBadRequest, "unsupported file format, use JPG, PNG, GIF or WebP"},
		{"size", covers.TooLarge(5 << 20), http.StatusBadRequest, "file too large, maximum is 5.0 MiB"},
		{"missing song", store.ErrSongNotFound, http.StatusNotFound, "song not found"},
		{"storage", errors.Join(covers.ErrStorage, errors.New("disk full")), http.StatusInternalServerError, "failed to upload cover"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			env := newTestServer(t)
			env.covers.uploadErr = tc.err
			req := multipartRequest(t, "/api/songs/"+uuid.NewString()+"/cover", "coverFile", "a.png", "image/png", []byte("x"))
			rr := env.do(t, req, true)
			if rr.Code != tc.status {
				t.Fatalf("status %d, want %d", rr.Code, tc.status)
			}
			if resp := decode(t, rr); resp.Message != tc.message {
				t.Fatalf("message %q, want %q", resp.Message, tc.message)
			}
		})
	}
}

func TestUploadCoverMissingFieldIsEmpty(t *testing.T) {
	env := newTestServer(t)
	env.covers.uploadErr = covers.ErrEmptyFile

	req := multipartRequest(t, "/api/songs/"+uuid.NewString()+"/cover", "", "", "", nil)
	rr := env.do(t, req, true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rr.Code)
	}
	if env.covers.lastUpload.Body != nil || env.covers.lastUpload.Size != 0 {
		t.Fatalf("expected empty upload, got %+v", env.covers.lastUpload)
	}
}

func TestUploadCoverBodyTooLarge(t *testing.T) {
	env := newTestServer(t)
	big := bytes.Repeat([]byte("a"), int(env.covers.MaxBytes())+multipartOverhead+10)
	req := multipartRequest(t, "/api/songs/"+uuid.NewString()+"/cover", "coverFile", "a.png", "image/png", big)

	rr := env.do(t, req, true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rr.Code)
	}
	if env.covers.calls != 0 {
		t.Fatalf("oversize body must not reach the manager")
	}
}

func TestServeCover(t *testing.T) {
	env := newTestServer(t)
	if err := os.WriteFile(filepath.Join(env.covers.dir, "song_cover_x.png"), []byte("\x89PNG"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/songs/cover/song_cover_x.png", nil), false)
	if rr.Code != http.StatusOK || rr.Body.String() != "\x89PNG" {
		t.Fatalf("serve = %d %q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}

	rr = env.do(t, httptest.NewRequest(http.MethodGet, "/api/songs/cover/missing.png", nil), false)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing cover: status %d", rr.Code)
	}
}

func TestRegister(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, jsonRequest(http.MethodPost, "/api/auth/register", `{"name":"John","username":"lennon","password":"imagine"}`), false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}

	env.users.registerErr = store.ErrUserExists
	rr = env.do(t, jsonRequest(http.MethodPost, "/api/auth/register", `{"name":"John","username":"lennon","password":"imagine"}`), false)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate: status %d, want 409", rr.Code)
	}

	env.users.registerErr = errors.Join(store.ErrInvalidUser, errors.New("password too short"))
	rr = env.do(t, jsonRequest(http.MethodPost, "/api/auth/register", `{"name":"John","username":"lennon","password":"x"}`), false)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid: status %d, want 400", rr.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"lennon","password":"imagine"}`), false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var session users.Session
	if err := json.Unmarshal(decode(t, rr).Data, &session); err != nil || session.Token != "token" {
		t.Fatalf("session = %+v (%v)", session, err)
	}

	env.users.loginErr = store.ErrInvalidCredentials
	rr = env.do(t, jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"lennon","password":"nope"}`), false)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials: status %d, want 401", rr.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestServer(t, WithAuthRateLimit(middleware.NewRateLimiter(0.001, 1)))

	first := env.do(t, jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"a","password":"b"}`), false)
	second := env.do(t, jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"a","password":"b"}`), false)
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("statuses %d, %d; want 200, 429", first.Code, second.Code)
	}
}

func TestMe(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/api/users/me", nil), true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var data struct {
		User meResponse `json:"user"`
	}
	if err := json.Unmarshal(decode(t, rr).Data, &data); err != nil || data.User.Username != "lennon" {
		t.Fatalf("user = %+v (%v)", data.User, err)
	}
}
