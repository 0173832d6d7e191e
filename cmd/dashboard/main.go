package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/events"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/metrics"
	"github.com/betbot/tradedash/internal/services"
	"github.com/betbot/tradedash/internal/session"
	"github.com/betbot/tradedash/internal/snapshot"
	"github.com/betbot/tradedash/internal/tui"
	"github.com/betbot/tradedash/pkg/config"
	"github.com/betbot/tradedash/pkg/logger"
	"github.com/betbot/tradedash/pkg/persistence"
	"github.com/betbot/tradedash/pkg/secretstore"
	"github.com/betbot/tradedash/pkg/shutdown"
)

const gracefulShutdownPeriod = 10 * time.Second

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径（yaml/json，可选）")
		apiURL     = flag.String("api", "", "后端 REST 地址，覆盖配置文件")
		wsURL      = flag.String("ws", "", "行情推送地址，覆盖配置文件")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	if *wsURL != "" {
		cfg.Stream.URL = *wsURL
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置验证失败: %v\n", err)
		os.Exit(1)
	}

	// 终端由界面占用，日志只写文件
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   true,
		Quiet:      true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	creds, closeCreds, err := openCredentialStore(cfg.Credentials)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开凭证存储失败: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeCreds(); err != nil {
			logger.Warnf("关闭凭证存储失败: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := shutdown.NewManager()
	if cfg.MetricsListen != "" {
		srv, err := metrics.StartAsync(ctx, cfg.MetricsListen)
		if err != nil {
			logger.Warnf("metrics 服务启动失败: %v", err)
		} else {
			logger.Infof("📈 metrics 服务: http://%s/metrics", cfg.MetricsListen)
			mgr.OnShutdown("metrics", func(ctx context.Context) error {
				if err := srv.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
		}
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	renderer := tui.NewRenderer()
	hl := events.NewHandlerList()
	hl.Add(events.HandlerFunc(logEvent))

	coord := services.NewCoordinator(services.CoordinatorConfig{
		StreamURL:      cfg.Stream.URL,
		PingInterval:   cfg.Stream.PingInterval,
		Reconnect:      cfg.Stream.Reconnect,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
	}, services.Deps{
		Sessions:  session.NewStore(creds),
		Auth:      client,
		Snapshots: snapshot.NewLoader(client),
		Orders:    gateway.New(client),
		Renderer:  renderer,
		Events:    hl,
	})

	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		coord.Run(ctx)
	}()
	mgr.OnShutdown("coordinator", func(sctx context.Context) error {
		cancel()
		select {
		case <-coordDone:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})

	p := tea.NewProgram(tui.NewModel(ctx, coord, renderer), tea.WithAltScreen())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Infof("收到信号 %v，退出", sig)
			p.Quit()
		case <-ctx.Done():
		}
	}()

	logger.Infof("🚀 dashboard 启动: api=%s ws=%s credentials=%s", cfg.API.BaseURL, cfg.Stream.URL, cfg.Credentials.Backend)
	_, runErr := p.Run()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("优雅关闭未完成: %v", err)
	}

	if runErr != nil {
		logger.Errorf("界面异常退出: %v", runErr)
		fmt.Fprintf(os.Stderr, "运行界面失败: %v\n", runErr)
		closeCreds()
		os.Exit(1)
	}
}

// openCredentialStore 按配置打开凭证存储，返回关闭函数
func openCredentialStore(cfg config.CredentialConfig) (session.CredentialStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.CredentialBackendMemory:
		return session.NewMemoryCredentialStore(), noop, nil

	case config.CredentialBackendBadger:
		var key []byte
		if cfg.EncryptionKey != "" {
			k, err := secretstore.ParseKey(cfg.EncryptionKey)
			if err != nil {
				return nil, nil, err
			}
			key = k
		} else {
			logger.Warnf("⚠️ badger 凭证存储未配置加密密钥，凭证将以明文保存")
		}
		st, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.Path, EncryptionKey: key})
		if err != nil {
			return nil, nil, err
		}
		return session.NewSecretCredentialStore(st), st.Close, nil

	default:
		return session.NewFileCredentialStore(persistence.NewJSONFileService(cfg.Path)), noop, nil
	}
}

func logEvent(_ context.Context, ev events.Event) error {
	entry := logrus.WithField("component", "events").WithField("event", ev.Name())
	switch e := ev.(type) {
	case events.SessionStartedEvent:
		entry.Infof("user=%s epoch=%d restored=%v", e.Identity.Username, e.Epoch, e.Restored)
	case events.SessionEndedEvent:
		entry.Infof("user=%s epoch=%d reason=%s", e.Identity.Username, e.Epoch, e.Reason)
	case events.OrderConfirmedEvent:
		entry.Infof("id=%s %s %s qty=%d price=%s", e.Order.ID, e.Order.Side, e.Order.Symbol, e.Order.Quantity, e.Order.Price)
	case events.OrderRejectedEvent:
		entry.Infof("%s %s qty=%d reason=%s", e.Draft.Side, e.Draft.Symbol, e.Draft.Quantity, e.Reason)
	case events.StreamStateChangedEvent:
		if e.Err != nil {
			entry.WithError(e.Err).Infof("epoch=%d state=%s", e.Epoch, e.State)
		} else {
			entry.Debugf("epoch=%d state=%s", e.Epoch, e.State)
		}
	}
	return nil
}
