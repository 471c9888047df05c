package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/repositories"
	"github.com/eddy-backend/eddy/internal/services/registry"
	"github.com/eddy-backend/eddy/pkg/cache"
)

// Field names read from principal records
const (
	UsernameField  = "username"
	PasswordField  = "password"
	SuperuserField = "is_superuser"
)

// Provider resolves the principal behind a request and issues session tokens
type Provider struct {
	store     repositories.RecordRepository
	principal *entities.EntitySchema
	issuer    *TokenIssuer
	hasher    *BcryptHasher
	cache     cache.Cache[*entities.Principal]
	logger    *zap.Logger
}

// ProviderOption configures a Provider
type ProviderOption func(*Provider)

// WithPrincipalCache caches resolved principals by identifier
func WithPrincipalCache(c cache.Cache[*entities.Principal]) ProviderOption {
	return func(p *Provider) {
		p.cache = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a Provider for the principal entity of reg
func NewProvider(reg *registry.Registry, store repositories.RecordRepository, issuer *TokenIssuer, hasher *BcryptHasher, opts ...ProviderOption) (*Provider, error) {
	principal, err := reg.Principal()
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, errors.New("no principal entity is registered")
	}
	for _, name := range []string{UsernameField, PasswordField} {
		if principal.GetField(name) == nil {
			return nil, fmt.Errorf("principal entity %s has no %s field", principal.Name, name)
		}
	}
	// Principals edit their own record, so a writable superuser flag would let them promote themselves
	if principal.GetField(SuperuserField) != nil && !principal.RequiresSuperuser {
		return nil, fmt.Errorf("principal entity %s has a %s field and must be superuser_only", principal.Name, SuperuserField)
	}

	p := &Provider{
		store:     store,
		principal: principal,
		issuer:    issuer,
		hasher:    hasher,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PrincipalEntity returns the name of the principal entity
func (p *Provider) PrincipalEntity() string {
	return p.principal.Name
}

// CurrentPrincipal returns the principal a bearer token was issued for.
// Missing, invalid or expired tokens and tokens of deleted principals yield the anonymous
// principal. An error is returned only when the store cannot be reached.
func (p *Provider) CurrentPrincipal(ctx context.Context, token string) (*entities.Principal, error) {
	if token == "" {
		return entities.Anonymous(), nil
	}

	id, err := p.issuer.Parse(token)
	if err != nil {
		p.logger.Debug("rejected session token", zap.Error(err))
		return entities.Anonymous(), nil
	}

	key := cacheKey(id)
	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, key); ok {
			c := *cached
			return &c, nil
		}
	}

	rec, err := p.store.GetByID(ctx, p.principal.Name, id)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		p.logger.Debug("session token for unknown principal", zap.Int64("principal_id", id))
		return entities.Anonymous(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}

	principal := principalOf(rec)
	if p.cache != nil {
		c := *principal
		if err := p.cache.Set(ctx, key, &c, 0); err != nil {
			p.logger.Warn("failed to cache principal", zap.Int64("principal_id", id), zap.Error(err))
		}
	}
	return principal, nil
}

// ObtainToken exchanges a username and password for a session token
func (p *Provider) ObtainToken(ctx context.Context, username, password string) (string, time.Time, error) {
	if username == "" || password == "" {
		return "", time.Time{}, entities.NewError(entities.KindInvalidArgument, p.principal.Name, "username and password are required")
	}

	recs, err := p.store.List(ctx, p.principal.Name, &repositories.RecordFilter{
		Equals: map[string]interface{}{UsernameField: username},
	})
	if err != nil {
		return "", time.Time{}, entities.Unavailable(p.principal.Name, fmt.Errorf("failed to look up credentials: %w", err))
	}

	for _, rec := range recs {
		digest, _ := rec.Values[PasswordField].(string)
		if digest != "" && p.hasher.Verify(digest, password) {
			token, expiresAt, err := p.issuer.Issue(rec.ID)
			if err != nil {
				return "", time.Time{}, entities.Unavailable(p.principal.Name, err)
			}
			return token, expiresAt, nil
		}
	}

	p.logger.Info("failed login", zap.String("username", username))
	return "", time.Time{}, entities.NewError(entities.KindUnauthenticated, p.principal.Name, "invalid credentials")
}

// Invalidate drops a cached principal so the next request reloads it
func (p *Provider) Invalidate(ctx context.Context, id int64) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Delete(ctx, cacheKey(id)); err != nil {
		p.logger.Warn("failed to invalidate principal", zap.Int64("principal_id", id), zap.Error(err))
	}
}

// InvalidateAll drops every cached principal
func (p *Provider) InvalidateAll(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Clear(ctx); err != nil {
		p.logger.Warn("failed to clear principal cache", zap.Error(err))
	}
}

func principalOf(rec *entities.Record) *entities.Principal {
	superuser, _ := rec.Values[SuperuserField].(bool)
	return &entities.Principal{
		ID:            rec.ID,
		Authenticated: true,
		Superuser:     superuser,
	}
}

func cacheKey(id int64) string {
	return "principal:" + strconv.FormatInt(id, 10)
}
