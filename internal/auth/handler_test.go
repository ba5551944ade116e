package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/auth"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
	_ "github.com/rentdesk/rentdesk/testing"
)

type memRepo struct {
	mu       sync.Mutex
	users    map[int64]*auth.User
	sessions map[string]int64
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[int64]*auth.User{}, sessions: map[string]int64{}}
}

func (m *memRepo) add(t *testing.T, email, password string, active bool) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u, err := m.CreateUser(context.Background(), auth.User{Email: email, PasswordHash: hash, Role: "admin", IsActive: active})
	require.NoError(t, err)
	return u
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) CreateUser(_ context.Context, user auth.User) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(user.Email) {
			return nil, auth.ErrEmailTaken
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.Email = strings.ToLower(user.Email)
	m.users[user.ID] = &user
	cp := user
	return &cp, nil
}

func (m *memRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memRepo) TouchLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *memRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = userID
	return nil
}

func (m *memRepo) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type recordedMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent []recordedMail
}

func (f *fakeMailer) SendMail(_ context.Context, to, subject, body string) error {
	f.sent = append(f.sent, recordedMail{to: to, subject: subject, body: body})
	return nil
}

type fixture struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *memRepo
	mailer   *fakeMailer
	redis    *redis.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	repo := newMemRepo()
	mailer := &fakeMailer{}
	service := auth.NewService(repo, auth.NewRedisTokenStore(client), mailer, nil, auth.Options{BaseURL: "http://rentdesk.test", SignupEnabled: true})
	handler := auth.NewHandler(nil, service, templates, sessions, csrf, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			buf := httptest.NewRecorder()
			next.ServeHTTP(buf, req.WithContext(ctx))
			require.NoError(t, sessions.Commit(ctx, w, req, sess))
			for k, v := range buf.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(buf.Code)
			_, _ = w.Write(buf.Body.Bytes())
		})
	})
	r.Route("/auth", handler.MountRoutes)
	return &fixture{router: r, sessions: sessions, repo: repo, mailer: mailer, redis: client}
}

func (f *fixture) do(method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "192.0.2.1:1234"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range res.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t)
	res := f.do(http.MethodGet, "/auth/login", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
	assert.Contains(t, res.Body.String(), `name="csrf_token"`)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.repo.add(t, "user@test.local", "correctpass", true)

	form := url.Values{"email": {"user@test.local"}, "password": {"wrongpass"}}
	res := f.do(http.MethodPost, "/auth/login", form)
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Email ou mot de passe invalide.")
	assert.Empty(t, f.repo.sessions)
}

func TestLoginRenewsSessionAndRedirects(t *testing.T) {
	f := newFixture(t)
	user := f.repo.add(t, "user@test.local", "correctpass", true)

	first := f.do(http.MethodGet, "/auth/login", nil)
	anon := sessionCookie(t, first, "test_session")

	form := url.Values{"email": {"USER@test.local"}, "password": {"correctpass"}, "next": {"/invoices"}}
	res := f.do(http.MethodPost, "/auth/login", form, anon)
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/invoices", res.Header().Get("Location"))

	renewed := sessionCookie(t, res, "test_session")
	assert.NotEqual(t, anon.Value, renewed.Value)
	assert.Equal(t, user.ID, f.repo.sessions[renewed.Value])
	assert.NotNil(t, f.repo.users[user.ID].LastLoginAt)
}

func TestLoginIgnoresOffsiteNext(t *testing.T) {
	f := newFixture(t)
	f.repo.add(t, "user@test.local", "correctpass", true)
	form := url.Values{"email": {"user@test.local"}, "password": {"correctpass"}, "next": {"//evil.example"}}
	res := f.do(http.MethodPost, "/auth/login", form)
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))
}

func TestInactiveUserCannotLogin(t *testing.T) {
	f := newFixture(t)
	f.repo.add(t, "gone@test.local", "correctpass", false)
	form := url.Values{"email": {"gone@test.local"}, "password": {"correctpass"}}
	res := f.do(http.MethodPost, "/auth/login", form)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestSignupCreatesAccountant(t *testing.T) {
	f := newFixture(t)
	form := url.Values{"email": {"New@Test.local"}, "full_name": {"Awa Diallo"}, "password": {"longpassword"}, "password_confirm": {"longpassword"}}
	res := f.do(http.MethodPost, "/auth/signup", form)
	require.Equal(t, http.StatusSeeOther, res.Code)

	u, err := f.repo.FindByEmail(context.Background(), "new@test.local")
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultSignupRole, u.Role)
	assert.True(t, u.IsActive)

	dup := f.do(http.MethodPost, "/auth/signup", form)
	assert.Equal(t, http.StatusBadRequest, dup.Code)
	assert.Contains(t, dup.Body.String(), "Un compte existe déjà")
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	f.repo.add(t, "user@test.local", "oldpassword", true)

	res := f.do(http.MethodPost, "/auth/forgot", url.Values{"email": {"user@test.local"}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Len(t, f.mailer.sent, 1)
	body := f.mailer.sent[0].body
	idx := strings.Index(body, "token=")
	require.Positive(t, idx)
	token := strings.Fields(body[idx+len("token="):])[0]

	form := url.Values{"token": {token}, "password": {"newpassword"}, "password_confirm": {"newpassword"}}
	res = f.do(http.MethodPost, "/auth/reset", form)
	require.Equal(t, http.StatusSeeOther, res.Code)

	svc := auth.NewService(f.repo, nil, nil, nil, auth.Options{})
	_, err := svc.Authenticate(context.Background(), "user@test.local", "newpassword")
	require.NoError(t, err)

	again := f.do(http.MethodPost, "/auth/reset", form)
	assert.Equal(t, http.StatusBadRequest, again.Code)
	assert.Contains(t, again.Body.String(), "invalide ou a expiré")
}

func TestForgotUnknownEmailSendsNothing(t *testing.T) {
	f := newFixture(t)
	res := f.do(http.MethodPost, "/auth/forgot", url.Values{"email": {"nobody@test.local"}})
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Empty(t, f.mailer.sent)
}
