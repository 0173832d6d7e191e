package mockserver

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/betbot/tradedash/pkg/cache"
)

const (
	ctxUserID   = "user_id"
	ctxUsername = "username"
	ctxToken    = "token"
)

var errInvalidCredentials = errors.New("invalid credentials")

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	password string
}

type authService struct {
	secret []byte
	ttl    time.Duration
	users  map[string]user

	// 作废的 token 只需保留到其自然过期
	revoked *cache.TTL[string, struct{}]
}

func newAuthService(secret string, ttl time.Duration) *authService {
	return &authService{
		secret: []byte(secret),
		ttl:    ttl,
		users: map[string]user{
			"admin":  {ID: "1", Username: "admin", password: "admin123"},
			"trader": {ID: "2", Username: "trader", password: "trader123"},
		},
		revoked: cache.NewTTL[string, struct{}](ttl),
	}
}

func (a *authService) authenticate(username, password string) (user, error) {
	u, ok := a.users[username]
	if !ok {
		return user{}, errInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(u.password), []byte(password)) != 1 {
		return user{}, errInvalidCredentials
	}
	return u, nil
}

// generateToken HS256；jti 保证同一秒内两次登录得到不同 token
func (a *authService) generateToken(u user) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  u.ID,
		"username": u.Username,
		"jti":      uuid.NewString(),
		"exp":      time.Now().Add(a.ttl).Unix(),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (a *authService) validateToken(tokenString string) (user, error) {
	if a.revoked.Has(tokenString) {
		return user{}, errors.New("token revoked")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return user{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return user{}, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return user{}, errors.New("invalid token claims")
	}
	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	if userID == "" {
		return user{}, errors.New("invalid user ID")
	}
	return user{ID: userID, Username: username}, nil
}

func (a *authService) revoke(token string) {
	a.revoked.Sweep()
	a.revoked.Set(token, struct{}{}, 0)
}

// bearerToken 从 Authorization 头取出 token
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		u, err := s.auth.validateToken(token)
		if err != nil {
			log.Debugf("token 校验失败: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(ctxUserID, u.ID)
		c.Set(ctxUsername, u.Username)
		c.Set(ctxToken, token)
		c.Next()
	}
}
