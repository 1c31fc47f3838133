package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sticker-studio-server/modules/common/database"
	"sticker-studio-server/modules/common/model"
	"sticker-studio-server/web"
)

type fakeUsers struct {
	mu     sync.Mutex
	byName map[string]*model.User
	fail   error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byName: map[string]*model.User{}}
}

func (f *fakeUsers) CreateUser(ctx context.Context, username, hash string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if _, ok := f.byName[username]; ok {
		return nil, fmt.Errorf("%w: username %q", database.ErrConflict, username)
	}
	u := &model.User{UserID: fmt.Sprintf("user-%d", len(f.byName)+1), Username: username, PasswordHash: hash}
	f.byName[username] = u
	return u, nil
}

func (f *fakeUsers) FetchUserByUsername(ctx context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if u, ok := f.byName[username]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeUsers) FetchUser(ctx context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byName {
		if u.UserID == userID {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

type fakeSessions struct {
	mu     sync.Mutex
	tokens map[string]string
	next   int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: map[string]string{}}
}

func (f *fakeSessions) Create(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	token := fmt.Sprintf("token-%d", f.next)
	f.tokens[token] = userID
	return token, nil
}

func (f *fakeSessions) Lookup(ctx context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return "", ErrNoSession
}

func (f *fakeSessions) Delete(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
	return nil
}

func (f *fakeSessions) TTL() time.Duration { return time.Hour }

type renderCall struct {
	status int
	name   string
	page   web.Page
}

type fakeRenderer struct {
	calls []renderCall
}

func (f *fakeRenderer) Render(w http.ResponseWriter, status int, name string, page web.Page) {
	f.calls = append(f.calls, renderCall{status: status, name: name, page: page})
	w.WriteHeader(status)
}

func (f *fakeRenderer) last(t *testing.T) renderCall {
	t.Helper()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fixture struct {
	users    *fakeUsers
	sessions *fakeSessions
	pages    *fakeRenderer
	handler  *Handler
	router   *mux.Router
}

func newFixture() *fixture {
	f := &fixture{users: newFakeUsers(), sessions: newFakeSessions(), pages: &fakeRenderer{}}
	f.handler = NewHandler(f.users, f.sessions, f.pages, false)
	f.handler.bcryptCost = bcrypt.MinCost
	f.router = mux.NewRouter()
	f.handler.RegisterRoutes(f.router)
	return f
}

func (f *fixture) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", CookieName)
	return nil
}

func TestRegisterCreatesUserAndSession(t *testing.T) {
	f := newFixture()

	rec := f.post("/register", url.Values{"username": {"momo"}, "password": {"correct horse"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)

	user, err := f.users.FetchUserByUsername(context.Background(), "momo")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse")))

	userID, err := f.sessions.Lookup(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, userID)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"short username", "ab", "long enough"},
		{"bad characters", "momo!", "long enough"},
		{"short password", "momo", "short"},
		{"long password", "momo", strings.Repeat("p", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := f.post("/register", url.Values{"username": {tt.username}, "password": {tt.password}})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "register", f.pages.last(t).name)
			assert.NotEmpty(t, f.pages.last(t).page.Error)
			assert.Empty(t, f.users.byName)
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	f := newFixture()
	f.post("/register", url.Values{"username": {"momo"}, "password": {"correct horse"}})

	rec := f.post("/register", url.Values{"username": {"momo"}, "password": {"another pass"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, RegisterForm{Username: "momo"}, f.pages.last(t).page.Data)
}

func TestLogin(t *testing.T) {
	f := newFixture()
	f.post("/register", url.Values{"username": {"momo"}, "password": {"correct horse"}})

	t.Run("wrong password", func(t *testing.T) {
		rec := f.post("/login", url.Values{"username": {"momo"}, "password": {"wrong horse"}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "login", f.pages.last(t).name)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := f.post("/login", url.Values{"username": {"nobody"}, "password": {"correct horse"}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("success redirects to next", func(t *testing.T) {
		rec := f.post("/login", url.Values{"username": {"momo"}, "password": {"correct horse"}, "next": {"/generations"}})
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/generations", rec.Header().Get("Location"))
		sessionCookie(t, rec)
	})

	t.Run("external next is ignored", func(t *testing.T) {
		rec := f.post("/login", url.Values{"username": {"momo"}, "password": {"correct horse"}, "next": {"//evil.example"}})
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})
}

func TestLogoutDeletesSession(t *testing.T) {
	f := newFixture()
	rec := f.post("/register", url.Values{"username": {"momo"}, "password": {"correct horse"}})
	cookie := sessionCookie(t, rec)

	rec = f.post("/logout", nil, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	_, err := f.sessions.Lookup(context.Background(), cookie.Value)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
}

func TestRequireUser(t *testing.T) {
	f := newFixture()
	rec := f.post("/register", url.Values{"username": {"momo"}, "password": {"correct horse"}})
	cookie := sessionCookie(t, rec)

	protected := f.handler.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(user.Username))
	}))

	t.Run("html redirects to login", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/style?subject=Sci-Fi", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login?next=%2Fstyle%3Fsubject%3DSci-Fi", rec.Header().Get("Location"))
	})

	t.Run("api answers 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/g1", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
	})

	t.Run("stale cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "expired"})
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "momo", rec.Body.String())
		assert.Equal(t, cookie.Value, sessionCookie(t, rec).Value, "cookie is refreshed")
	})
}

func TestUserFromContextEmpty(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	_, ok = UserFromContext(WithUser(context.Background(), nil))
	assert.False(t, ok)
}
