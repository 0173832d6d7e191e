package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/tradedash/internal/mockserver"
	"github.com/betbot/tradedash/pkg/logger"
)

func main() {
	// .env 不存在时使用真实环境变量
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		listenAddr = flag.String("listen", getenv("TRADEDASH_MOCK_LISTEN", ":8080"), "HTTP listen address")
		dbPath     = flag.String("db", getenv("TRADEDASH_MOCK_DB", "data/mockserver.db"), "SQLite db file path")
		secret     = flag.String("secret", getenv("JWT_SECRET", ""), "JWT signing secret")
		tick       = flag.Duration("tick", 3*time.Second, "price simulator tick interval")
		logLevel   = flag.String("log-level", getenv("TRADEDASH_LOG_LEVEL", "info"), "log level")
		loginLimit = flag.Int("login-limit", 10, "login attempts per username per minute (<0 disables)")
	)
	flag.Parse()

	if err := logger.Init(logger.Config{
		Level:      *logLevel,
		OutputFile: "logs/mockserver.log",
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     7,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	srv, err := mockserver.New(mockserver.Config{
		DBPath:       *dbPath,
		JWTSecret:    *secret,
		TokenTTL:     24 * time.Hour,
		TickInterval: *tick,
		LoginLimit:   *loginLimit,
	})
	if err != nil {
		logger.Errorf("init mockserver failed: %v", err)
		os.Exit(1)
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("🚀 mockserver listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("mockserver stopped with error: %v", err)
		return
	}
	logger.Info("mockserver stopped")
}
