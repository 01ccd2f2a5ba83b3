package clinicauth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/clinicauth"
	"github.com/MrEthical07/clinicauth/password"
	"github.com/MrEthical07/clinicauth/permission"
	"github.com/MrEthical07/clinicauth/store/memory"
)

const testPassword = "Correct-Horse-1"

var fastHash = password.Config{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *clinicauth.Engine
	store  *memory.Store
	clock  *fakeClock
	hasher *password.Argon2
}

func testConfig() clinicauth.Config {
	cfg := clinicauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghi")
	cfg.Password.Hash = fastHash
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*clinicauth.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	st := memory.New()
	clock := newFakeClock()
	engine, err := clinicauth.New().
		WithConfig(cfg).
		WithUserStore(st).
		WithRoleStore(st).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	h, err := password.NewArgon2(fastHash)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	return &testEnv{engine: engine, store: st, clock: clock, hasher: h}
}

// addUser inserts an active user whose password is testPassword.
func (env *testEnv) addUser(t *testing.T, username string, role permission.Role, clinicID, branchID string) *clinicauth.UserRecord {
	t.Helper()

	hash, err := env.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := env.clock.Now()
	u := &clinicauth.UserRecord{
		ID:            "id-" + username,
		Email:         username + "@clinic.test",
		Username:      username,
		PasswordHash:  hash,
		FirstName:     "Test",
		LastName:      "User",
		Role:          role,
		Status:        clinicauth.StatusActive,
		ClinicID:      clinicID,
		BranchID:      branchID,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := env.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (env *testEnv) login(t *testing.T, ident string, remember bool) *clinicauth.AuthResult {
	t.Helper()

	res, err := env.engine.Login(context.Background(), clinicauth.LoginInput{
		EmailOrUsername: ident,
		Password:        testPassword,
		RememberMe:      remember,
	})
	if err != nil {
		t.Fatalf("login %s: %v", ident, err)
	}
	return res
}

// principal logs in and authenticates, as the middleware would.
func (env *testEnv) principal(t *testing.T, username string) *clinicauth.Principal {
	t.Helper()

	res := env.login(t, username, false)
	p, err := env.engine.Authenticate(context.Background(), res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate %s: %v", username, err)
	}
	return p
}

func (env *testEnv) user(t *testing.T, id string) *clinicauth.UserRecord {
	t.Helper()

	u, err := env.store.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get user %s: %v", id, err)
	}
	return u
}
