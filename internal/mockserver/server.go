package mockserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betbot/tradedash/pkg/ratelimit"
)

var log = logrus.WithField("component", "mockserver")

const (
	defaultTokenTTL     = 24 * time.Hour
	defaultTickInterval = 3 * time.Second
	defaultLoginLimit   = 10
	loginWindow         = time.Minute
	devJWTSecret        = "tradedash-dev-secret-change-me"
)

type Config struct {
	DBPath       string // ":memory:" 用于测试
	JWTSecret    string
	TokenTTL     time.Duration
	TickInterval time.Duration
	// LoginLimit 每个用户名每分钟允许的登录尝试次数；<0 表示不限制
	LoginLimit   int
}

// Server 开发用后端：REST + WebSocket 行情推送
type Server struct {
	cfg  Config
	db   *sql.DB
	sim  *Simulator
	auth *authService

	loginLimiter *ratelimit.Keyed

	upgrader websocket.Upgrader

	connMu sync.Mutex
	conns  map[*websocket.Conn]string // conn -> token

	bgCancel func()
	bgWG     sync.WaitGroup
	wsWG     sync.WaitGroup
}

func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	if cfg.JWTSecret == "" {
		log.Warn("⚠️ 未配置 JWT secret，使用开发默认值")
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.LoginLimit == 0 {
		cfg.LoginLimit = defaultLoginLimit
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Server{
		cfg:  cfg,
		db:   db,
		sim:  NewSimulator(),
		auth: newAuthService(cfg.JWTSecret, cfg.TokenTTL),

		loginLimiter: ratelimit.NewKeyed(cfg.LoginLimit, loginWindow),

		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]string),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.startBackground()
	return s, nil
}

// Simulator 暴露给测试，用于手动推进行情
func (s *Server) Simulator() *Simulator { return s.sim }

func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.sim.Run(ctx, s.cfg.TickInterval)
	}()
}

func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.connMu.Unlock()
	s.bgWG.Wait()
	s.wsWG.Wait()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Revoke 作废 token：后续 REST 请求返回 401，已建立的推送连接被断开
func (s *Server) Revoke(token string) {
	s.auth.revoke(token)

	s.connMu.Lock()
	defer s.connMu.Unlock()
	for conn, t := range s.conns {
		if t == token {
			_ = conn.Close()
		}
	}
	log.Infof("🔒 token 已作废")
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.POST("/login", s.handleLogin)
	r.GET("/prices", s.handlePrices)
	r.GET("/ws", s.handleStream)

	protected := r.Group("/")
	protected.Use(s.authMiddleware())
	protected.GET("/orders", s.handleOrdersList)
	protected.POST("/orders", s.handleOrdersCreate)

	return r
}

// trackConn 登记推送连接；服务已关闭时返回 false
func (s *Server) trackConn(conn *websocket.Conn, token string) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = token
	s.wsWG.Add(1)
	return true
}

func (s *Server) forgetConn(conn *websocket.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
	s.wsWG.Done()
}
