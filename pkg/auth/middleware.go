package auth

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

type contextKey string

const (
	tokenHeader               = "Authorization"
	tokenPrefix               = "Bearer "
	UserClaimsKey  contextKey = "user_claims"
	UserIDKey      contextKey = "user_id"
	PermissionsKey contextKey = "permissions"
)

var ErrInvalidSubject = errors.New("token subject is not a user id")

// NewAuthInterceptor validates the bearer token and puts the caller's user id on the context.
// Handlers behind it can rely on GetUserID.
func NewAuthInterceptor(signer *Signer) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			token, err := bearerToken(req.Header().Get(tokenHeader))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			claims, err := signer.ValidateToken(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired token"))
			}

			authed, err := WithClaims(ctx, claims)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(authed, req)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	token, ok := strings.CutPrefix(header, tokenPrefix)
	if !ok || token == "" {
		return "", errors.New("invalid authorization header format")
	}
	return token, nil
}

// WithClaims stores the caller's claims in ctx. The subject must parse as a user id.
func WithClaims(ctx context.Context, claims *Claims) (context.Context, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, ErrInvalidSubject
	}
	ctx = context.WithValue(ctx, UserClaimsKey, claims)
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, PermissionsKey, claims.Permissions), nil
}

// GetUserClaims retrieves the full claims from the context.
func GetUserClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*Claims)
	return claims, ok
}

// GetUserID returns the authenticated caller
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return id, ok
}
