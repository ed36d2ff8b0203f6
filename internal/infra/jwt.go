// README: HS256 session tokens; issues for sign-in and verifies bearer tokens.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"giftwave/internal/types"
)

type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: duration,
		now:           time.Now,
	}
}

// Issue signs a token carrying the user id as sub and the coarse role.
func (j *JWTManager) Issue(userID types.ID, role string) (string, time.Time, error) {
	now := j.now()
	exp := now.Add(j.tokenDuration)
	claims := jwt.MapClaims{
		"sub":  string(userID),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (j *JWTManager) Parse(tokenStr string) (types.ID, error) {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return "", err
	}
	sub, _ := claims["sub"].(string)
	return types.ID(sub), nil
}

func (j *JWTManager) VerifyIDToken(_ context.Context, tokenStr string) (*Token, error) {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	return &Token{UID: claims["sub"].(string), Provider: ProviderSession, Claims: claims}, nil
}

func (j *JWTManager) parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	if sub, ok := claims["sub"].(string); !ok || sub == "" {
		return nil, errors.New("invalid sub claim")
	}
	return claims, nil
}
