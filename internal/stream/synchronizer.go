// Package stream 维护单个会话的行情推送连接。
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/metrics"
	"github.com/betbot/tradedash/pkg/syncgroup"
)

var log = logrus.WithField("component", "stream")

// State 连接状态；Closed 对单个实例是终态
type State int32

const (
	StateAbsent State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Listener 接收连接事件
//
// 回调在连接自己的 goroutine 上按到达顺序串行调用；ctx 在 Close 时取消，
// 回调中的阻塞发送必须同时监听 ctx.Done()。
type Listener interface {
	OnOpen(ctx context.Context, epoch uint64)
	OnQuote(ctx context.Context, epoch uint64, q domain.Quote)
	// OnClosed 连接非主动关闭时调用一次；err 为 nil 表示服务端正常关闭
	OnClosed(ctx context.Context, epoch uint64, err error)
}

// Config 连接配置
type Config struct {
	URL              string
	Token            string
	Epoch            uint64
	PingInterval     time.Duration // 为 0 不发 ping
	HandshakeTimeout time.Duration
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 5 * time.Second
	maxPreviewLen           = 240
)

// Synchronizer 单个推送连接实例，绑定一个会话 epoch
type Synchronizer struct {
	cfg      Config
	listener Listener
	dialer   *websocket.Dialer

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	opened chan struct{}
	done   chan struct{} // run 返回时关闭

	sg *syncgroup.SyncGroup
}

func New(cfg Config, listener Listener) *Synchronizer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Synchronizer{
		cfg:      cfg,
		listener: listener,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		opened: make(chan struct{}),
		done:   make(chan struct{}),
		sg:     syncgroup.NewSyncGroup(),
	}
}

// State 返回当前状态
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start Absent -> Connecting，在后台拨号；只能调用一次
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateAbsent {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.sg.Add(func() { s.run(runCtx) })
	s.sg.Add(func() { s.pingLoop(runCtx) })
	s.sg.Run()
}

// Close 主动关闭：Connecting/Open 时取消拨号或关闭连接并等待 goroutine 退出；Closed 时无操作
//
// Close 返回后不会再有任何回调。
func (s *Synchronizer) Close() {
	s.mu.Lock()
	switch s.state {
	case StateAbsent:
		s.state = StateClosed
		s.mu.Unlock()
		return
	case StateClosed:
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.sg.Wait()
		return
	}
	prev := s.state
	s.state = StateClosed
	conn := s.conn
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	if conn != nil {
		if prev == StateOpen {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		}
		_ = conn.Close()
	}
	s.sg.Wait()
	log.Infof("🔌 推送连接已关闭: epoch=%d", s.cfg.Epoch)
}

func (s *Synchronizer) run(ctx context.Context) {
	defer close(s.done)

	conn, err := s.dial(ctx)
	if err != nil {
		s.finish(ctx, err)
		return
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// 拨号期间被 Close
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.state = StateOpen
	s.conn = conn
	s.mu.Unlock()
	close(s.opened)

	log.Infof("✅ 推送连接已建立: epoch=%d", s.cfg.Epoch)
	s.listener.OnOpen(ctx, s.cfg.Epoch)
	s.readLoop(ctx, conn)
}

func (s *Synchronizer) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.Wrap(domain.ErrUnauthorized, "stream handshake")
		}
		return nil, &domain.TransportError{Op: "stream dial", Err: err}
	}
	return conn, nil
}

func (s *Synchronizer) readLoop(ctx context.Context, conn *websocket.Conn) {
	if s.cfg.PingInterval > 0 {
		deadline := 2 * s.cfg.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(deadline))
		})
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.finish(ctx, nil)
				return
			}
			s.finish(ctx, &domain.TransportError{Op: "stream read", Err: err})
			return
		}
		if s.cfg.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		q, err := DecodeQuote(data)
		if err != nil {
			metrics.ObserveDecodeFailure()
			var de *domain.DecodeError
			if errors.As(err, &de) {
				log.Warnf("丢弃无法解析的推送: %v (len=%d preview=%q)", de.Err, len(data), truncateForLog(de.Raw, maxPreviewLen))
			}
			continue
		}
		metrics.ObserveStreamMessage()

		if !s.isOpen() {
			return
		}
		s.listener.OnQuote(ctx, s.cfg.Epoch, q)
	}
}

// finish 连接非主动结束：进入 Closed 并回调一次；已被 Close 则静默退出
func (s *Synchronizer) finish(ctx context.Context, err error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if err != nil {
		log.WithError(err).Warnf("⚠️ 推送连接断开: epoch=%d", s.cfg.Epoch)
	} else {
		log.Infof("推送连接被服务端关闭: epoch=%d", s.cfg.Epoch)
	}
	s.listener.OnClosed(ctx, s.cfg.Epoch, err)
}

func (s *Synchronizer) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen
}

// pingLoop 连接建立后周期发送 ping；拨号失败或 run 退出时随之退出
func (s *Synchronizer) pingLoop(ctx context.Context) {
	if s.cfg.PingInterval <= 0 {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-s.done:
		return
	case <-s.opened:
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn, open := s.conn, s.state == StateOpen
			s.mu.Unlock()
			if !open {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debugf("发送 ping 失败: %v", err)
			}
		}
	}
}

type wireQuote struct {
	Symbol    string              `json:"symbol"`
	Price     decimal.NullDecimal `json:"price"`
	Change    decimal.Decimal     `json:"change"`
	ChangePct decimal.Decimal     `json:"changePct"`
}

// DecodeQuote 解析一条推送 {symbol, price, change, changePct}
//
// symbol 与 price 必填；change/changePct 缺省为 0。失败返回 *domain.DecodeError。
func DecodeQuote(data []byte) (domain.Quote, error) {
	var w wireQuote
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Quote{}, &domain.DecodeError{Raw: string(data), Err: err}
	}
	symbol := strings.TrimSpace(w.Symbol)
	if symbol == "" {
		return domain.Quote{}, &domain.DecodeError{Raw: string(data), Err: errors.New("missing symbol")}
	}
	if !w.Price.Valid {
		return domain.Quote{}, &domain.DecodeError{Raw: string(data), Err: errors.New("missing price")}
	}
	return domain.Quote{
		Symbol:         symbol,
		LastPrice:      w.Price.Decimal,
		AbsoluteChange: w.Change,
		PercentChange:  w.ChangePct,
	}, nil
}

func truncateForLog(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
