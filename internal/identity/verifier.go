package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/natidev-sh/natiweb/internal/cache"
	"go.uber.org/zap"
)

const verifiedTokenTTL = time.Minute

type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier checks access tokens locally when the signing secret is
// known and falls back to asking the provider otherwise.
type TokenVerifier struct {
	secret []byte
	client *Client
	cache  cache.Cache[string, Principal]
	log    *zap.Logger
	now    func() time.Time
}

func NewTokenVerifier(secret string, client *Client, log *zap.Logger) *TokenVerifier {
	if log == nil {
		log = zap.NewNop()
	}
	v := &TokenVerifier{
		client: client,
		cache:  cache.NewTTLCache[string, Principal](),
		log:    log.Named("identity.verifier"),
		now:    time.Now,
	}
	if secret = strings.TrimSpace(secret); secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

func (v *TokenVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	if len(v.secret) > 0 {
		return v.verifyLocal(token)
	}
	return v.verifyRemote(ctx, token)
}

func (v *TokenVerifier) verifyLocal(token string) (*Principal, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrInvalidToken
	}
	return &Principal{UserID: claims.Subject, Email: claims.Email}, nil
}

func (v *TokenVerifier) verifyRemote(ctx context.Context, token string) (*Principal, error) {
	if v.client == nil {
		return nil, ErrInvalidToken
	}
	key := tokenCacheKey(token)
	if cached, ok := v.cache.Get(key); ok {
		return &cached, nil
	}

	user, err := v.client.CurrentUser(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			v.log.Warn("remote token verification failed", zap.Error(err))
		}
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(user.ID); err != nil {
		return nil, ErrInvalidToken
	}

	principal := Principal{UserID: user.ID, Email: user.Email}
	v.cache.Set(key, principal, verifiedTokenTTL)
	return &principal, nil
}

func tokenCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
