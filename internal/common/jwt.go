package common

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret = []byte(os.Getenv("JWT_SECRET"))

// Claims represents the data stored in the session token.
type Claims struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
	jwt.RegisteredClaims
}

func GenerateToken(userID, handle string) (string, error) {
	claims := &Claims{
		UserID: userID,
		Handle: handle,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "gorelay",
			Subject:   "user-auth",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(jwtSecret)
}

func ValidToken(tokenstring string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenstring, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// JWTValidator implements SessionValidator on top of ValidToken.
type JWTValidator struct{}

func NewJWTValidator() *JWTValidator { return &JWTValidator{} }

func (v *JWTValidator) Validate(token string) (string, error) {
	claims, err := ValidToken(token)
	if err != nil {
		return "", ErrUnauthenticated
	}
	return claims.UserID, nil
}
