package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"liveclass/pkg/interfaces"
)

// ErrEmptySecret is returned when the issuer is constructed without a
// signing secret.
var ErrEmptySecret = errors.New("media signing secret cannot be empty")

// RoomClaims is the payload the media-routing provider expects: which room
// the token grants access to and under what identity.
type RoomClaims struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// JWTIssuer issues HMAC-signed room tokens for the media-routing provider
// and releases room resources when a session ends.
type JWTIssuer struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	rooms map[string]bool // provider-side rooms believed open
}

var _ interfaces.CredentialIssuer = (*JWTIssuer)(nil)

// NewJWTIssuer creates a token issuer signing with secret, valid for ttl.
func NewJWTIssuer(secret string, ttl time.Duration, log *slog.Logger) (*JWTIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &JWTIssuer{
		secret:   []byte(secret),
		issuer:   "liveclass",
		tokenTTL: ttl,
		log:      log,
		rooms:    make(map[string]bool),
	}, nil
}

// IssueToken returns a signed token granting identity access to roomID.
func (i *JWTIssuer) IssueToken(ctx context.Context, roomID, identity string) (string, error) {
	now := time.Now()
	claims := &RoomClaims{
		Room:     roomID,
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign room token: %w", err)
	}

	i.mu.Lock()
	i.rooms[roomID] = true
	i.mu.Unlock()

	return signed, nil
}

// ReleaseRoom tears down provider-side room state. Best-effort by contract.
func (i *JWTIssuer) ReleaseRoom(ctx context.Context, roomID string) error {
	i.mu.Lock()
	delete(i.rooms, roomID)
	i.mu.Unlock()

	i.log.Info("released media room", "room_id", roomID)
	return nil
}

// ParseToken validates a token and returns its claims, used by tests and by
// the provider-facing verification path.
func (i *JWTIssuer) ParseToken(tokenString string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*RoomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
