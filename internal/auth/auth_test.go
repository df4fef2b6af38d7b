package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/bunx"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/hooks"
	"github.com/bunbase/bunbase/internal/records"
	"github.com/bunbase/bunbase/internal/repository"
	"github.com/bunbase/bunbase/internal/schema"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	token, err := issuer.Issue("subject-1", TokenKindAdmin, "")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", claims.Subject)
	assert.Equal(t, TokenKindAdmin, claims.Kind)
	assert.Empty(t, claims.Collection)
}

func TestTokenCarriesCollection(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	token, err := issuer.Issue("rec-1", TokenKindUser, "users")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, TokenKindUser, claims.Kind)
	assert.Equal(t, "users", claims.Collection)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Verify("not.a.jwt")
		require.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIssuer("other-secret", time.Hour)
		token, err := other.Issue("s", TokenKindAdmin, "")
		require.NoError(t, err)
		_, err = issuer.Verify(token)
		require.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
	})

	t.Run("expired", func(t *testing.T) {
		short := NewTokenIssuer(testSecret, time.Nanosecond)
		token, err := short.Issue("s", TokenKindAdmin, "")
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
		_, err = issuer.Verify(token)
		require.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2-hunter2")
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "hunter2-hunter2"))
	assert.False(t, VerifyPassword(hash, "wrong"))
	assert.False(t, VerifyPassword("not-a-hash", "hunter2-hunter2"))
}

func setupResolver(t *testing.T) (*Resolver, repository.AdminRepository, *records.Service) {
	t.Helper()
	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })
	require.NoError(t, bunx.RunMigrations(context.Background(), db))

	registry := schema.NewRegistry(db, repository.NewBunCollectionRepository(db), repository.NewBunFieldRepository(db))
	recordService := records.NewService(db, registry, hooks.NewRegistry())
	admins := repository.NewBunAdminRepository(db)
	issuer := NewTokenIssuer(testSecret, time.Hour)
	return NewResolver(issuer, admins, recordService), admins, recordService
}

func newAdmin(t *testing.T, admins repository.AdminRepository) *models.Admin {
	t.Helper()
	hash, err := HashPassword("admin-password")
	require.NoError(t, err)
	now := models.NowUTC()
	admin := &models.Admin{
		ID:           uuid.NewString(),
		Email:        "root@example.com",
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, admins.Create(context.Background(), admin))
	return admin
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestResolveAnonymous(t *testing.T) {
	resolver, _, _ := setupResolver(t)

	principal, err := resolver.Resolve(context.Background(), authedRequest(""))
	require.NoError(t, err)
	assert.Nil(t, principal)

	assert.False(t, principal.IsAdmin())
	assert.Empty(t, principal.ID())
	assert.Nil(t, principal.RuleInfo())
}

func TestResolveAdmin(t *testing.T) {
	resolver, admins, _ := setupResolver(t)
	ctx := context.Background()
	admin := newAdmin(t, admins)

	token, err := resolver.Issuer().Issue(admin.ID, TokenKindAdmin, "")
	require.NoError(t, err)

	principal, err := resolver.Resolve(ctx, authedRequest(token))
	require.NoError(t, err)
	require.True(t, principal.IsAdmin())
	assert.Equal(t, admin.ID, principal.ID())
	assert.Equal(t, "admin", principal.RuleInfo().Role)
}

func TestResolveUser(t *testing.T) {
	resolver, _, recordService := setupResolver(t)
	ctx := context.Background()

	registry := recordService.Registry()
	_, err := registry.CreateCollection(ctx, "users", models.CollectionTypeAuth, nil, schema.RuleSet{})
	require.NoError(t, err)
	record, err := recordService.Create(ctx, "users", records.Record{"email": "x@y.z", "password": "password-1"})
	require.NoError(t, err)
	recordID := record["id"].(string)

	token, err := resolver.Issuer().Issue(recordID, TokenKindUser, "users")
	require.NoError(t, err)

	principal, err := resolver.Resolve(ctx, authedRequest(token))
	require.NoError(t, err)
	assert.False(t, principal.IsAdmin())
	assert.Equal(t, recordID, principal.ID())
	assert.Equal(t, "users", principal.Collection)
	assert.Equal(t, "user", principal.RuleInfo().Role)
}

func TestResolveStaleSubject(t *testing.T) {
	resolver, _, _ := setupResolver(t)

	token, err := resolver.Issuer().Issue("gone", TokenKindAdmin, "")
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), authedRequest(token))
	require.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))
}

func TestRequireAdmin(t *testing.T) {
	resolver, admins, recordService := setupResolver(t)
	ctx := context.Background()

	_, err := resolver.RequireAdmin(ctx, authedRequest(""))
	require.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))

	registry := recordService.Registry()
	_, err = registry.CreateCollection(ctx, "users", models.CollectionTypeAuth, nil, schema.RuleSet{})
	require.NoError(t, err)
	record, err := recordService.Create(ctx, "users", records.Record{"email": "x@y.z"})
	require.NoError(t, err)
	userToken, err := resolver.Issuer().Issue(record["id"].(string), TokenKindUser, "users")
	require.NoError(t, err)

	_, err = resolver.RequireAdmin(ctx, authedRequest(userToken))
	require.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))

	admin := newAdmin(t, admins)
	adminToken, err := resolver.Issuer().Issue(admin.ID, TokenKindAdmin, "")
	require.NoError(t, err)

	principal, err := resolver.RequireAdmin(ctx, authedRequest(adminToken))
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())
}

func TestEnsureInitialAdmin(t *testing.T) {
	_, admins, _ := setupResolver(t)
	ctx := context.Background()

	require.NoError(t, EnsureInitialAdmin(ctx, admins))

	first, err := admins.GetByEmail(ctx, InitialAdminEmail)
	require.NoError(t, err)
	assert.NotEmpty(t, first.PasswordHash)

	// A second call must not replace the provisioned admin.
	require.NoError(t, EnsureInitialAdmin(ctx, admins))
	count, err := admins.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	again, err := admins.GetByEmail(ctx, InitialAdminEmail)
	require.NoError(t, err)
	assert.Equal(t, first.PasswordHash, again.PasswordHash)
}
