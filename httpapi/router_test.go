package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/httpapi"
	"github.com/MrEthical07/clinicauth/internal/rate"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/permission"
	"github.com/MrEthical07/clinicauth/store/memory"
	"github.com/stretchr/testify/require"
)

const pw = "Correct-Horse-1"

type envelope struct {
	Success   bool                    `json:"success"`
	Message   string                  `json:"message"`
	Data      json.RawMessage         `json:"data"`
	Errors    []clinicauth.FieldError `json:"errors"`
	LockUntil *time.Time              `json:"lockUntil"`
	Count     int                     `json:"count"`
}

type sent struct {
	kind  string
	email string
	token string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, u *clinicauth.UserRecord, raw string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{"reset", u.Email, raw})
	return nil
}

func (n *recordingNotifier) SendEmailVerification(_ context.Context, u *clinicauth.UserRecord, raw string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{"verify", u.Email, raw})
	return nil
}

func (n *recordingNotifier) last(kind string) (sent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i], true
		}
	}
	return sent{}, false
}

type server struct {
	handler  http.Handler
	engine   *clinicauth.Engine
	store    *memory.Store
	notifier *recordingNotifier
}

func newServer(t *testing.T, mutate ...func(*httpapi.Options)) *server {
	t.Helper()

	cfg := clinicauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghi")
	cfg.Password.Hash = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Audit.Enabled = false

	st := memory.New()
	engine, err := clinicauth.New().WithConfig(cfg).WithUserStore(st).WithRoleStore(st).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	_, err = engine.SeedSystemRoles(context.Background())
	require.NoError(t, err)

	hasher, err := password.NewArgon2(cfg.Password.Hash)
	require.NoError(t, err)
	hash, err := hasher.Hash(pw)
	require.NoError(t, err)

	seed := []struct {
		name   string
		role   permission.Role
		clinic string
		branch string
	}{
		{"root", permission.SuperAdmin, "", ""},
		{"owner", permission.Owner, "c1", ""},
		{"mgr", permission.Manager, "c1", "b1"},
		{"staff", permission.Staff, "c1", "b1"},
	}
	for _, u := range seed {
		require.NoError(t, st.CreateUser(context.Background(), &clinicauth.UserRecord{
			ID: "id-" + u.name, Email: u.name + "@clinic.test", Username: u.name, PasswordHash: hash,
			FirstName: "T", LastName: "U", Role: u.role, Status: clinicauth.StatusActive,
			ClinicID: u.clinic, BranchID: u.branch, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}))
	}

	n := &recordingNotifier{}
	opts := httpapi.Options{Engine: engine, Notifier: n}
	for _, m := range mutate {
		m(&opts)
	}
	return &server{handler: httpapi.NewRouter(opts), engine: engine, store: st, notifier: n}
}

func (s *server) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type authData struct {
	User struct {
		ID       string `json:"id"`
		Role     string `json:"role"`
		ClinicID string `json:"clinicId"`
	} `json:"user"`
	Tokens            tokens `json:"tokens"`
	VerificationToken string `json:"verificationToken"`
}

func (s *server) login(t *testing.T, ident string) tokens {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"emailOrUsername": ident, "password": pw})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data authData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Tokens
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	rec, env := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	down := newServer(t, func(o *httpapi.Options) {
		o.Ready = func(context.Context) error { return errors.New("db down") }
	})
	rec, env = down.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "db down")
	require.False(t, env.Success)
}

func TestSessionLifecycle(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email": "Dana@Clinic.test", "username": "dana", "password": pw, "confirmPassword": pw,
		"firstName": "Dana", "lastName": "Lee", "clinicId": "c1", "branchId": "b1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "passwordHash")
	require.NotContains(t, rec.Body.String(), "verificationToken")

	var reg authData
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	require.Equal(t, "STAFF", reg.User.Role)
	require.NotEmpty(t, reg.Tokens.AccessToken)

	sentVerify, ok := s.notifier.last("verify")
	require.True(t, ok)
	require.Equal(t, "dana@clinic.test", sentVerify.email)

	tok := s.login(t, "dana@clinic.test")

	rec, env = s.do(t, http.MethodGet, "/api/v1/auth/profile", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prof struct {
		Username             string   `json:"username"`
		EffectivePermissions []string `json:"effectivePermissions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &prof))
	require.Equal(t, "dana", prof.Username)
	require.Contains(t, prof.EffectivePermissions, string(permission.ReadPatients))

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": tok.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var rotated tokens
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	require.NotEqual(t, tok.RefreshToken, rotated.RefreshToken)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": tok.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code, "a rotated refresh token is single use")

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", rotated.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": rotated.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorEnvelope(t *testing.T) {
	s := newServer(t)

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email": "not-an-email", "username": "x", "password": pw, "confirmPassword": pw, "clinicId": "c1", "branchId": "b1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, env.Success)
	fields := map[string]bool{}
	for _, f := range env.Errors {
		fields[f.Field] = true
	}
	require.True(t, fields["email"], "field errors: %+v", env.Errors)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	plain := httptest.NewRecorder()
	s.handler.ServeHTTP(plain, req)
	require.Equal(t, http.StatusBadRequest, plain.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/auth/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLockoutOverHTTP(t *testing.T) {
	s := newServer(t)
	bad := map[string]any{"emailOrUsername": "staff", "password": "Wrong-Horse-1"}

	for i := 0; i < 5; i++ {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", bad)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}
	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"emailOrUsername": "staff", "password": pw})
	require.Equal(t, http.StatusLocked, rec.Code)
	require.NotNil(t, env.LockUntil)

	owner := s.login(t, "owner")
	rec, _ = s.do(t, http.MethodPost, "/api/v1/users/id-staff/unlock", owner.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s.login(t, "staff")
}

func TestPasswordResetThroughNotifier(t *testing.T) {
	s := newServer(t)

	rec, unknown := s.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "ghost@clinic.test"})
	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := s.notifier.last("reset")
	require.False(t, ok)

	rec, known := s.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "staff@clinic.test"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, unknown.Message, known.Message)
	require.Empty(t, known.Data)

	msg, ok := s.notifier.last("reset")
	require.True(t, ok)

	next := "Brand-New-Pass-2"
	body := map[string]string{"token": msg.token, "password": next, "confirmPassword": next}
	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code, "reset tokens are single use")

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"emailOrUsername": "staff", "password": next})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestExposeTokens(t *testing.T) {
	s := newServer(t, func(o *httpapi.Options) {
		o.ExposeTokens = true
		o.Notifier = nil
	})

	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email": "eve@clinic.test", "username": "eve", "password": pw, "confirmPassword": pw,
		"firstName": "Eve", "lastName": "Ng", "clinicId": "c1", "branchId": "b1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg authData
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	require.NotEmpty(t, reg.VerificationToken)

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{"token": reg.VerificationToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var user struct {
		EmailVerified bool `json:"emailVerified"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &user))
	require.True(t, user.EmailVerified)

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/resend-verification", "", map[string]string{"email": "eve@clinic.test"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, env.Data, "verified addresses get no new token")

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "eve@clinic.test"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "resetToken")
}

func TestRoleRoutes(t *testing.T) {
	s := newServer(t)
	owner := s.login(t, "owner")
	staff := s.login(t, "staff")

	rec, _ := s.do(t, http.MethodGet, "/api/v1/roles", staff.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := s.do(t, http.MethodGet, "/api/v1/roles", owner.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		IsSystem bool   `json:"isSystem"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &roles))
	require.Len(t, roles, 5)

	rec, env = s.do(t, http.MethodPost, "/api/v1/roles", owner.AccessToken, map[string]any{
		"name": "Receptionist", "displayName": "Receptionist", "permissions": []string{"read:patients", "create:opd"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		ClinicID string `json:"clinicId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "receptionist", created.Name)
	require.Equal(t, "c1", created.ClinicID)

	rec, env = s.do(t, http.MethodPost, "/api/v1/roles", owner.AccessToken, map[string]any{
		"name": "bad", "displayName": "Bad", "permissions": []string{"fly:rockets"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, env.Errors)

	rec, _ = s.do(t, http.MethodPut, "/api/v1/users/id-staff/custom-role", owner.AccessToken, map[string]string{"roleId": created.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodDelete, "/api/v1/roles/"+created.ID, owner.AccessToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 1, env.Count)

	var system string
	for _, r := range roles {
		if r.IsSystem {
			system = r.ID
			break
		}
	}
	rec, _ = s.do(t, http.MethodDelete, "/api/v1/roles/"+system, owner.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodDelete, "/api/v1/roles/missing", owner.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserRoutes(t *testing.T) {
	s := newServer(t)
	mgr := s.login(t, "mgr")
	staff := s.login(t, "staff")

	newStaff := func(username, branch string) map[string]any {
		return map[string]any{
			"email": username + "@clinic.test", "username": username, "password": pw,
			"firstName": "New", "lastName": "Staff", "role": "STAFF", "branchId": branch,
		}
	}

	rec, env := s.do(t, http.MethodPost, "/api/v1/users", mgr.AccessToken, newStaff("nina", "b1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var nina struct {
		ID       string `json:"id"`
		ClinicID string `json:"clinicId"`
		Role     string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &nina))
	require.Equal(t, "c1", nina.ClinicID)
	require.Equal(t, "STAFF", nina.Role)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/users", mgr.AccessToken, newStaff("omar", "b2"))
	require.Equal(t, http.StatusForbidden, rec.Code, "managers are pinned to their branch")

	rec, _ = s.do(t, http.MethodPost, "/api/v1/users", staff.AccessToken, newStaff("pia", "b1"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/users/id-staff", staff.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodGet, "/api/v1/users/"+nina.ID, staff.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/"+nina.ID+"/status", mgr.AccessToken, map[string]string{"status": "SUSPENDED"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"emailOrUsername": "nina", "password": pw})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/id-owner/role", mgr.AccessToken, map[string]string{"role": "STAFF"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	owner := s.login(t, "owner")
	rec, env = s.do(t, http.MethodPatch, "/api/v1/users/id-staff/role", owner.AccessToken, map[string]string{"role": "MANAGER"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, string(env.Data), `"role":"MANAGER"`)
}

func TestRateLimit(t *testing.T) {
	limiter, err := rate.NewMemory(rate.Config{Limit: 2, Window: time.Minute})
	require.NoError(t, err)
	s := newServer(t, func(o *httpapi.Options) { o.Limiter = limiter })

	body := map[string]any{"emailOrUsername": "ghost", "password": pw}
	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, uint64(1), s.engine.MetricsSnapshot().Counters[clinicauth.MetricRateLimitHit])
}

func TestPermissionsListing(t *testing.T) {
	s := newServer(t)
	staff := s.login(t, "staff")

	rec, env := s.do(t, http.MethodGet, "/api/v1/permissions", staff.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var perms []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &perms))
	require.Len(t, perms, len(permission.All()))
}
