// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName carries the signed guest session token. The token only
// pins a stable connection identity for the duration of one network
// session; no durable account state hangs off it.
const SessionCookieName = "minesduel_session"

// privateKey and publicKey sign and verify session tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// sessionExpireSec is how many seconds until token expiration (0 => never).
	sessionExpireSec int
)

// parseSessionExpire reads the SESSION_EXPIRE env var ("never", "0", or a
// Go duration) and sets sessionExpireSec accordingly.
func parseSessionExpire() {
	duration := os.Getenv("SESSION_EXPIRE")
	if duration == "never" || duration == "0" || duration == "" {
		sessionExpireSec = 0
		return
	}
	d, err := time.ParseDuration(duration)
	if err != nil {
		fmt.Printf("failed to parse session expire time: %v\n", err)
		os.Exit(1)
	}
	sessionExpireSec = int(d.Seconds())
}

// Init generates a fresh ed25519 key pair at runtime. Tokens therefore do
// not survive a process restart, which matches the process-lifetime scope
// of everything else in this engine.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseSessionExpire()
}

// CreateSessionToken signs a JWT with "sub" = connID.
func CreateSessionToken(connID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": connID,
	}
	if sessionExpireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(sessionExpireSec) * time.Second).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifySessionToken validates a token string and returns its "sub" claim.
func VerifySessionToken(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}

// EnsureGuestSession resolves the connection identity for an incoming
// upgrade request: a valid session cookie is reused, otherwise a fresh
// guest UUID is minted and a new cookie issued. Must run before the
// websocket handshake response is written.
func EnsureGuestSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if sub, err := VerifySessionToken(cookie.Value); err == nil {
			if id, err := uuid.Parse(sub); err == nil {
				return id, nil
			}
		}
	}

	id := uuid.New()
	token, err := CreateSessionToken(id.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create session token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	return id, nil
}
