// ABOUTME: Staff bearer token verification for authenticating staff requests
// ABOUTME: Uses HS256 signing with configurable secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// StaffClaims is the identity carried in a staff-bearer token. The token
// does not self-certify employment; the resolver re-checks the staff
// directory on every use.
type StaffClaims struct {
	ExternalID   string
	RestaurantID string
	Role         Role
}

// TokenVerifier verifies staff-bearer tokens and extracts their claims.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier with the given HS256 secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{secret: secret}
}

// Verify validates the token signature and expiry and extracts staff claims.
func (v *TokenVerifier) Verify(tokenString string) (*StaffClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	rid, ok := claims["rid"].(string)
	if !ok || rid == "" {
		return nil, fmt.Errorf("%w: rid", ErrMissingClaim)
	}
	role, _ := claims["role"].(string)

	return &StaffClaims{
		ExternalID:   sub,
		RestaurantID: rid,
		Role:         Role(role),
	}, nil
}

// Generate creates a staff-bearer token with the given claims and expiration.
func (v *TokenVerifier) Generate(externalID, restaurantID string, role Role, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  externalID,
		"rid":  restaurantID,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
