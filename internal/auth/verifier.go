package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"live-quiz-service/internal/domain"
)

// Claims is the identity carried by a bearer token.
type Claims struct {
	UserID      string
	DisplayName string
}

// Verifier validates a bearer credential presented over the socket.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// JWTVerifier validates HMAC-signed tokens carrying a user_id claim and an
// optional username claim for the roster display name.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(raw string) (Claims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("%w: invalid claims", domain.ErrUnauthenticated)
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Claims{}, fmt.Errorf("%w: user_id claim missing", domain.ErrUnauthenticated)
	}

	name, _ := claims["username"].(string)
	if name == "" {
		name = userID
	}
	return Claims{UserID: userID, DisplayName: name}, nil
}
