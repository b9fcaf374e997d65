package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/intex-outreach/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds the session claims: account id, username and role.
type Claims struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// SessionManager issues and reads the signed session cookie.
type SessionManager struct {
	secret     []byte
	expire     time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

// NewSessionManager creates a session manager.
func NewSessionManager(secret string, expireHours int, cookieName string, secure bool) *SessionManager {
	if expireHours <= 0 {
		expireHours = 24
	}
	if cookieName == "" {
		cookieName = "outreach_session"
	}
	return &SessionManager{
		secret:     []byte(secret),
		expire:     time.Duration(expireHours) * time.Hour,
		cookieName: cookieName,
		secure:     secure,
		now:        time.Now,
	}
}

// Generate creates a signed token for the actor.
func (s *SessionManager) Generate(actor models.Actor) (string, error) {
	now := s.now()
	claims := Claims{
		AccountID: actor.AccountID,
		Username:  actor.Username,
		Role:      string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses a token and returns the actor it carries.
func (s *SessionManager) Validate(tokenString string) (*models.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AccountID <= 0 {
		return nil, ErrInvalidToken
	}
	role, _ := models.ParseRole(claims.Role)
	return &models.Actor{AccountID: claims.AccountID, Username: claims.Username, Role: role}, nil
}

// Start sets the session cookie for actor.
func (s *SessionManager) Start(c *gin.Context, actor models.Actor) error {
	token, err := s.Generate(actor)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookieName, token, int(s.expire.Seconds()), "/", "", s.secure, true)
	return nil
}

// Clear removes the session cookie.
func (s *SessionManager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cookieName, "", -1, "/", "", s.secure, true)
}

// Actor returns the actor from the request's session cookie, if any.
func (s *SessionManager) Actor(c *gin.Context) (*models.Actor, error) {
	raw, err := c.Cookie(s.cookieName)
	if err != nil || raw == "" {
		return nil, nil
	}
	return s.Validate(raw)
}
