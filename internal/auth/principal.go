package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/models"
	"github.com/bunbase/bunbase/internal/records"
	"github.com/bunbase/bunbase/internal/repository"
	"github.com/bunbase/bunbase/internal/rules"
)

// Principal is the authenticated party resolved from a bearer token.
type Principal struct {
	Kind TokenKind

	// Admin is set for admin principals.
	Admin *models.Admin

	// Record and Collection are set for user principals.
	Record     records.Record
	Collection string
}

// ID returns the stable identifier of the principal.
func (p *Principal) ID() string {
	if p == nil {
		return ""
	}
	if p.Kind == TokenKindAdmin && p.Admin != nil {
		return p.Admin.ID
	}
	if id, ok := p.Record[models.ColumnID].(string); ok {
		return id
	}
	return ""
}

// IsAdmin reports whether the principal is an admin.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Kind == TokenKindAdmin
}

// RuleInfo projects the principal onto the slice visible to rule
// expressions. A nil principal yields a nil AuthInfo (anonymous).
func (p *Principal) RuleInfo() *rules.AuthInfo {
	if p == nil {
		return nil
	}
	role := "user"
	if p.IsAdmin() {
		role = "admin"
	}
	return &rules.AuthInfo{ID: p.ID(), Role: role}
}

// Resolver turns bearer tokens into principals.
type Resolver struct {
	issuer  *TokenIssuer
	admins  repository.AdminRepository
	records *records.Service
}

// NewResolver creates a resolver.
func NewResolver(issuer *TokenIssuer, admins repository.AdminRepository, recordService *records.Service) *Resolver {
	return &Resolver{issuer: issuer, admins: admins, records: recordService}
}

// Issuer exposes the underlying token issuer.
func (r *Resolver) Issuer() *TokenIssuer {
	return r.issuer
}

// Resolve extracts the bearer token from the request and loads the
// matching principal. A missing header resolves to (nil, nil); a
// malformed or stale token resolves to an Unauthorized error.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Principal, error) {
	token := bearerToken(req)
	if token == "" {
		return nil, nil
	}
	return r.ResolveToken(ctx, token)
}

// ResolveToken loads the principal for a raw token string.
func (r *Resolver) ResolveToken(ctx context.Context, token string) (*Principal, error) {
	claims, err := r.issuer.Verify(token)
	if err != nil {
		return nil, err
	}

	switch claims.Kind {
	case TokenKindAdmin:
		admin, err := r.admins.GetByID(ctx, claims.Subject)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return nil, apperrors.Unauthorized("unknown admin token subject")
			}
			return nil, err
		}
		return &Principal{Kind: TokenKindAdmin, Admin: admin}, nil

	case TokenKindUser:
		record, err := r.records.Get(ctx, claims.Collection, claims.Subject)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				return nil, apperrors.Unauthorized("unknown user token subject")
			}
			return nil, err
		}
		return &Principal{Kind: TokenKindUser, Record: record, Collection: claims.Collection}, nil
	}
	return nil, apperrors.Unauthorized("invalid token kind")
}

// RequireAdmin resolves the request principal and fails unless it is an
// admin.
func (r *Resolver) RequireAdmin(ctx context.Context, req *http.Request) (*Principal, error) {
	principal, err := r.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() {
		return nil, apperrors.Unauthorized("admin authorization required")
	}
	return principal, nil
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
