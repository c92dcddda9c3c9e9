package hipchat

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what an authenticated Connect request tells us about its
// origin: which tenant signed it and which room it concerns.
type Identity struct {
	ClientKey string
	RoomID    int64
	UserID    int64
}

var ErrBadToken = errors.New("hipchat: invalid request token")

// VerifyToken authenticates a Connect JWT. The issuer claim names the
// tenant; secretFor resolves that tenant's shared secret, which then
// verifies the HS256 signature. Room and user come from the platform's
// context claims.
func VerifyToken(token string, secretFor func(clientKey string) (string, error)) (Identity, error) {
	var id Identity

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil || iss == "" {
			return nil, fmt.Errorf("%w: missing issuer", ErrBadToken)
		}
		id.ClientKey = iss
		secret, err := secretFor(iss)
		if err != nil {
			return nil, err
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrBadToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrBadToken
	}
	if ctx, ok := claims["context"].(map[string]any); ok {
		if v, ok := ctx["room_id"].(float64); ok {
			id.RoomID = int64(v)
		}
		if v, ok := ctx["user_id"].(float64); ok {
			id.UserID = int64(v)
		}
	}
	return id, nil
}
