// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package auth issues and checks the bearer tokens that guard the admin
// operations of the Provider-Registration service.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sapcc/go-bits/osext"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 8 * time.Hour

// roleAdmin is the role claim required for admin operations.
const roleAdmin = "admin"

// TokenIssuer checks operator credentials and issues bearer tokens.
type TokenIssuer struct {
	SecretKey     []byte
	AdminUsername string
	AdminPassword string
	// slot for test doubles
	timeNow func() time.Time
}

// NewTokenIssuerFromEnv builds a TokenIssuer from the process environment.
func NewTokenIssuerFromEnv() (*TokenIssuer, error) {
	secret, err := osext.NeedGetenv("WEIGHBRIDGE_AUTH_SECRET")
	if err != nil {
		return nil, err
	}
	username, err := osext.NeedGetenv("WEIGHBRIDGE_AUTH_ADMIN_USERNAME")
	if err != nil {
		return nil, err
	}
	password := os.Getenv("WEIGHBRIDGE_AUTH_ADMIN_PASSWORD")
	if password == "" {
		return nil, errors.New("missing required environment variable: WEIGHBRIDGE_AUTH_ADMIN_PASSWORD")
	}
	return NewTokenIssuer(secret, username, password, time.Now), nil
}

// NewTokenIssuer builds a TokenIssuer.
func NewTokenIssuer(secret, adminUsername, adminPassword string, timeNow func() time.Time) *TokenIssuer {
	return &TokenIssuer{
		SecretKey:     []byte(secret),
		AdminUsername: adminUsername,
		AdminPassword: adminPassword,
		timeNow:       timeNow,
	}
}

// Login checks the given credentials and issues a token. The second return
// value is false on a credential mismatch.
func (t *TokenIssuer) Login(username, password string) (token string, ok bool) {
	// both comparisons run unconditionally to keep the timing uniform
	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(t.AdminUsername)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(t.AdminPassword)) == 1
	if !usernameOK || !passwordOK {
		return "", false
	}

	now := t.timeNow()
	claims := jwt.MapClaims{
		"sub":  username,
		"role": roleAdmin,
		"iat":  now.Unix(),
		"exp":  now.Add(TokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.SecretKey)
	if err != nil {
		return "", false
	}
	return token, true
}

// CheckAdmin validates the request's bearer token and checks the admin
// role. On failure, the appropriate error response (401 or 403) has already
// been written and false is returned.
func (t *TokenIssuer) CheckAdmin(w http.ResponseWriter, r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return false
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
		func(*jwt.Token) (any, error) { return t.SecretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.timeNow),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		http.Error(w, "invalid bearer token", http.StatusUnauthorized)
		return false
	}

	if role, _ := claims["role"].(string); role != roleAdmin {
		http.Error(w, "admin access required", http.StatusForbidden)
		return false
	}
	return true
}
