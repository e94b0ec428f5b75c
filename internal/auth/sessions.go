// Package auth issues the signed session tokens that identify players and
// the super admin, and verifies the super-admin PIN.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims extends the registered claims with the session identity. Player
// tokens carry the quiz and player they were issued for.
type Claims struct {
	jwt.RegisteredClaims
	Role     Role   `json:"role"`
	QuizID   int64  `json:"quiz_id,omitempty"`
	PlayerID int64  `json:"player_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// Sessions signs and validates HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *Sessions) IssuePlayer(quizID, playerID int64, username string) (string, error) {
	return s.issue(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.FormatInt(playerID, 10)},
		Role:             RolePlayer,
		QuizID:           quizID,
		PlayerID:         playerID,
		Username:         username,
	})
}

func (s *Sessions) IssueAdmin(username string) (string, error) {
	return s.issue(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: username},
		Role:             RoleAdmin,
		Username:         username,
	})
}

func (s *Sessions) issue(claims Claims) (string, error) {
	now := s.now()
	claims.ID = uuid.New().String()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims.
func (s *Sessions) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	switch claims.Role {
	case RoleAdmin:
	case RolePlayer:
		if claims.PlayerID == 0 || claims.QuizID == 0 {
			return nil, ErrInvalidToken
		}
	default:
		return nil, ErrInvalidToken
	}
	return claims, nil
}
