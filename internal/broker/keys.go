package broker

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKey = errors.New("invalid key")

// KeyClaims are the claims of an API key minted by "broker token".
type KeyClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// IssueKey signs an API key for name. A zero ttl issues a key that never expires.
func IssueKey(secret, name string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := KeyClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// KeyValidator decides which API keys may use the broker. With a secret
// configured, keys must be tokens signed with it; otherwise the key must
// equal the static key.
type KeyValidator struct {
	Static string
	Secret string
}

func (v KeyValidator) Validate(key string) (*KeyClaims, error) {
	if v.Secret == "" {
		if key != v.Static {
			return nil, ErrInvalidKey
		}
		return &KeyClaims{Name: key}, nil
	}

	token, err := jwt.ParseWithClaims(key, &KeyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	claims, ok := token.Claims.(*KeyClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidKey
	}
	return claims, nil
}
