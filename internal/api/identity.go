// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/models"
)

// Identity is the resolved caller identity for serving endpoints. A request
// can carry a session ID, a user ID, or both; both present means the caller
// just identified and their session profile folds into the user profile.
type Identity struct {
	SessionID string
	UserID    string
}

// Key returns the profile key this identity serves from. User identity wins
// over session identity.
func (id Identity) Key() string {
	if id.UserID != "" {
		return models.UserKey(id.UserID)
	}
	return id.SessionID
}

// SessionKey returns the session profile key, or "" without a session.
func (id Identity) SessionKey() string {
	return id.SessionID
}

// Identified reports whether the request carried both identities, which
// triggers merge-on-identify before serving.
func (id Identity) Identified() bool {
	return id.SessionID != "" && id.UserID != ""
}

// Empty reports whether no identity was resolved at all.
func (id Identity) Empty() bool {
	return id.SessionID == "" && id.UserID == ""
}

// identityResolver extracts caller identity from requests. Query parameters
// take precedence; a bearer token fills in whatever the query left empty.
type identityResolver struct {
	// jwtSecret verifies bearer tokens when set. When empty, tokens are
	// decoded without verification and treated as identity hints only;
	// profile data is per-visitor recommendations, not account data.
	jwtSecret string
}

// Resolve extracts the identity from query parameters and the Authorization
// header. A malformed bearer token is ignored with a warning rather than
// rejected, because anonymous serving (trending fallback) is still valid.
func (ir *identityResolver) Resolve(r *http.Request) Identity {
	id := Identity{
		SessionID: r.URL.Query().Get("sessionId"),
		UserID:    r.URL.Query().Get("userId"),
	}

	if id.SessionID != "" && id.UserID != "" {
		return id
	}

	claims := ir.bearerClaims(r)
	if claims == nil {
		return id
	}

	if id.UserID == "" {
		id.UserID = claimUserID(claims)
	}
	if id.SessionID == "" {
		if sid, ok := claims["sid"].(string); ok {
			id.SessionID = sid
		}
	}

	return id
}

// claimUserID extracts a user ID from token claims. Issuers differ on the
// claim name, so the common spellings are tried in order, including a nested
// user object. First non-empty wins.
func claimUserID(claims jwt.MapClaims) string {
	for _, name := range []string{"userId", "user_id", "id", "sub"} {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	if user, ok := claims["user"].(map[string]interface{}); ok {
		for _, name := range []string{"user_id", "id", "userId"} {
			if v, ok := user[name].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

// bearerClaims parses the Authorization bearer token, verifying the HMAC
// signature when a secret is configured.
func (ir *identityResolver) bearerClaims(r *http.Request) jwt.MapClaims {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil
	}
	raw, found := strings.CutPrefix(auth, "Bearer ")
	if !found || raw == "" {
		return nil
	}

	claims := jwt.MapClaims{}

	if ir.jwtSecret != "" {
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(ir.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			logging.Warn().Err(err).Msg("bearer token rejected")
			return nil
		}
		return claims
	}

	// No secret configured: decode without verification.
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		logging.Warn().Err(err).Msg("bearer token unparseable")
		return nil
	}
	return claims
}
