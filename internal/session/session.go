// Package session issues the opaque anonymous-visitor token that keys the
// cart. The token is a random uuid carried inside an HS256-signed cookie;
// a tampered or expired cookie is treated as absent and a fresh identity
// is minted.
package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName = "wb_session"
	ctxKey     = "session_token"

	// TTL is the cookie lifespan: one week.
	TTL = 7 * 24 * time.Hour
)

type Manager struct {
	secret []byte
	secure bool
}

// NewManager builds a cookie manager. secure marks minted cookies
// Secure and should be true whenever the public base URL is https.
func NewManager(secret string, secure bool) *Manager {
	return &Manager{secret: []byte(secret), secure: secure}
}

func (m *Manager) sign(token string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   token,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(TTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) verify(cookie string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(cookie, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("empty subject")
	}
	return claims.Subject, nil
}

// Middleware resolves the session token from the request cookie, minting
// and setting a new one when the cookie is missing or invalid. The token
// is stashed in the gin context for handlers to read via Token.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := ""
		if cookie, err := c.Cookie(CookieName); err == nil {
			tok, _ = m.verify(cookie)
		}
		if tok == "" {
			tok = uuid.NewString()
			if signed, err := m.sign(tok); err == nil {
				c.SetSameSite(http.SameSiteLaxMode)
				c.SetCookie(CookieName, signed, int(TTL.Seconds()), "/", "", m.secure, true)
			}
		}
		c.Set(ctxKey, tok)
		c.Next()
	}
}

// Token returns the session token resolved by Middleware.
func Token(c *gin.Context) string {
	return c.GetString(ctxKey)
}
