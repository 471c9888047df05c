package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
	"github.com/eddy-backend/eddy/internal/repositories/memory"
	"github.com/eddy-backend/eddy/internal/services/parser"
	"github.com/eddy-backend/eddy/internal/services/registry"
	"github.com/eddy-backend/eddy/pkg/cache/memorycache"
)

const providerDSL = `
entity user principal superuser_only {
    field username: string unique
    secret password
    field is_superuser: bool
}
`

// countingStore counts principal lookups and can be switched off
type countingStore struct {
	*memory.RecordRepository
	gets int
	down bool
}

func (s *countingStore) GetByID(ctx context.Context, entity string, id int64) (*entities.Record, error) {
	s.gets++
	if s.down {
		return nil, errors.New("connection refused")
	}
	return s.RecordRepository.GetByID(ctx, entity, id)
}

func (s *countingStore) List(ctx context.Context, entity string, filter *repositories.RecordFilter) ([]*entities.Record, error) {
	if s.down {
		return nil, errors.New("connection refused")
	}
	return s.RecordRepository.List(ctx, entity, filter)
}

type providerEnv struct {
	provider *Provider
	store    *countingStore
	hasher   *BcryptHasher
	issuer   *TokenIssuer
}

func newProviderEnv(t *testing.T, opts ...ProviderOption) *providerEnv {
	t.Helper()
	schema, err := parser.ParseSchema(providerDSL)
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
	reg, err := registry.FromSchema(schema)
	if err != nil {
		t.Fatalf("FromSchema() error = %v", err)
	}

	env := &providerEnv{
		store:  &countingStore{RecordRepository: memory.NewRecordRepository()},
		hasher: NewBcryptHasher(bcrypt.MinCost),
		issuer: newTestIssuer(t),
	}
	env.provider, err = NewProvider(reg, env.store, env.issuer, env.hasher, opts...)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return env
}

func (e *providerEnv) addUser(t *testing.T, username, password string, superuser bool) int64 {
	t.Helper()
	digest, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	rec := entities.NewRecord("user")
	rec.Set(UsernameField, username)
	rec.Set(PasswordField, digest)
	rec.Set(SuperuserField, superuser)
	saved, err := e.store.Save(context.Background(), rec)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return saved.ID
}

func TestNewProvider_RequiresPrincipal(t *testing.T) {
	schema, _ := parser.ParseSchema(`entity block_type { field label: string }`)
	reg, _ := registry.FromSchema(schema)
	if _, err := NewProvider(reg, memory.NewRecordRepository(), newTestIssuer(t), NewBcryptHasher(bcrypt.MinCost)); err == nil {
		t.Error("expected error without a principal entity")
	}

	schema, _ = parser.ParseSchema(`entity user principal { field name: string }`)
	reg, _ = registry.FromSchema(schema)
	if _, err := NewProvider(reg, memory.NewRecordRepository(), newTestIssuer(t), NewBcryptHasher(bcrypt.MinCost)); err == nil {
		t.Error("expected error for a principal without credentials")
	}
}

func TestNewProvider_SuperuserFlagRequiresSuperuserOnly(t *testing.T) {
	tests := []struct {
		name    string
		dsl     string
		wantErr bool
	}{
		{
			name:    "writable superuser flag",
			dsl:     "entity user principal {\n    field username: string unique\n    secret password\n    field is_superuser: bool\n}",
			wantErr: true,
		},
		{
			name: "superuser_only principal",
			dsl:  "entity user principal superuser_only {\n    field username: string unique\n    secret password\n    field is_superuser: bool\n}",
		},
		{
			name: "no superuser flag",
			dsl:  "entity user principal {\n    field username: string unique\n    secret password\n}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, err := parser.ParseSchema(tt.dsl)
			if err != nil {
				t.Fatalf("ParseSchema() error = %v", err)
			}
			reg, err := registry.FromSchema(schema)
			if err != nil {
				t.Fatalf("FromSchema() error = %v", err)
			}
			_, err = NewProvider(reg, memory.NewRecordRepository(), newTestIssuer(t), NewBcryptHasher(bcrypt.MinCost))
			if (err != nil) != tt.wantErr {
				t.Errorf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProvider_ObtainTokenAndResolve(t *testing.T) {
	env := newProviderEnv(t)
	ctx := context.Background()
	adminID := env.addUser(t, "admin", "admin", true)
	aliceID := env.addUser(t, "alice", "wonderland", false)

	token, expiresAt, err := env.provider.ObtainToken(ctx, "alice", "wonderland")
	if err != nil {
		t.Fatalf("ObtainToken() error = %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Errorf("expiresAt = %v, want future", expiresAt)
	}

	p, err := env.provider.CurrentPrincipal(ctx, token)
	if err != nil {
		t.Fatalf("CurrentPrincipal() error = %v", err)
	}
	if p.ID != aliceID || !p.Authenticated || p.Superuser {
		t.Errorf("CurrentPrincipal() = %+v", p)
	}

	adminToken, _, err := env.provider.ObtainToken(ctx, "admin", "admin")
	if err != nil {
		t.Fatalf("ObtainToken() error = %v", err)
	}
	admin, _ := env.provider.CurrentPrincipal(ctx, adminToken)
	if admin.ID != adminID || !admin.Superuser {
		t.Errorf("admin principal = %+v", admin)
	}
}

func TestProvider_ObtainTokenFailures(t *testing.T) {
	env := newProviderEnv(t)
	env.addUser(t, "alice", "wonderland", false)

	tests := []struct {
		name     string
		username string
		password string
		want     entities.ErrorKind
	}{
		{name: "wrong password", username: "alice", password: "looking-glass", want: entities.KindUnauthenticated},
		{name: "unknown user", username: "bob", password: "wonderland", want: entities.KindUnauthenticated},
		{name: "missing password", username: "alice", want: entities.KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.provider.ObtainToken(context.Background(), tt.username, tt.password)
			if got := entities.KindOf(err); got != tt.want {
				t.Errorf("ObtainToken() error kind = %s, want %s (%v)", got, tt.want, err)
			}
		})
	}

	env.store.down = true
	_, _, err := env.provider.ObtainToken(context.Background(), "alice", "wonderland")
	if got := entities.KindOf(err); got != entities.KindCollaboratorUnavailable {
		t.Errorf("ObtainToken() with store down = %s", got)
	}
}

func TestProvider_CurrentPrincipalAnonymous(t *testing.T) {
	env := newProviderEnv(t)
	ctx := context.Background()

	deletedToken, _, err := env.issuer.Issue(999)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	for name, token := range map[string]string{
		"empty":             "",
		"garbage":           "abc.def.ghi",
		"deleted principal": deletedToken,
	} {
		t.Run(name, func(t *testing.T) {
			p, err := env.provider.CurrentPrincipal(ctx, token)
			if err != nil {
				t.Fatalf("CurrentPrincipal() error = %v", err)
			}
			if p.Authenticated {
				t.Errorf("expected anonymous principal, got %+v", p)
			}
		})
	}
}

func TestProvider_StoreUnavailable(t *testing.T) {
	env := newProviderEnv(t)
	id := env.addUser(t, "alice", "pw", false)
	token, _, _ := env.issuer.Issue(id)

	env.store.down = true
	if _, err := env.provider.CurrentPrincipal(context.Background(), token); err == nil {
		t.Error("expected error when the store is down")
	}
}

func TestProvider_Cache(t *testing.T) {
	principals := memorycache.New[*entities.Principal](&memorycache.Config{
		MaxSizeBytes:  1024 * 1024,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	env := newProviderEnv(t, WithPrincipalCache(principals))
	ctx := context.Background()

	id := env.addUser(t, "alice", "pw", false)
	token, _, _ := env.issuer.Issue(id)

	for i := 0; i < 3; i++ {
		if _, err := env.provider.CurrentPrincipal(ctx, token); err != nil {
			t.Fatalf("CurrentPrincipal() error = %v", err)
		}
	}
	if env.store.gets != 1 {
		t.Errorf("expected 1 store lookup with caching, got %d", env.store.gets)
	}

	// cached principals are copies
	p, _ := env.provider.CurrentPrincipal(ctx, token)
	p.Superuser = true
	again, _ := env.provider.CurrentPrincipal(ctx, token)
	if again.Superuser {
		t.Error("mutating a returned principal changed the cache")
	}

	// promoting the user is visible after invalidation
	rec, _ := env.store.RecordRepository.GetByID(ctx, "user", id)
	rec.Set(SuperuserField, true)
	if _, err := env.store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := NewInvalidationHook(env.provider).AfterUpdate(ctx, nil, rec, rec); err != nil {
		t.Fatalf("AfterUpdate() error = %v", err)
	}
	promoted, _ := env.provider.CurrentPrincipal(ctx, token)
	if !promoted.Superuser {
		t.Error("expected reloaded principal to be a superuser")
	}

	env.provider.InvalidateAll(ctx)
	if principals.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", principals.Len())
	}
}
