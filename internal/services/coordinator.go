package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/events"
	"github.com/betbot/tradedash/internal/metrics"
	"github.com/betbot/tradedash/internal/ports"
	"github.com/betbot/tradedash/internal/session"
	"github.com/betbot/tradedash/internal/stream"
)

var coordinatorLog = logrus.WithField("component", "coordinator")

// State 协调器状态
type State int

const (
	StateLoggedOut State = iota
	StateBootstrapping
	StateLive
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "LoggedOut"
	case StateBootstrapping:
		return "Bootstrapping"
	case StateLive:
		return "Live"
	case StateTerminating:
		return "Terminating"
	default:
		return "Unknown"
	}
}

// 会话结束原因
const (
	ReasonLogout       = "logout"
	ReasonUnauthorized = "unauthorized"
	ReasonReplaced     = "replaced"
)

// StreamConn 单个推送连接实例（stream.Synchronizer 实现）
type StreamConn interface {
	Start(ctx context.Context)
	Close()
	State() stream.State
}

// StreamFactory 为一个会话 epoch 创建推送连接
type StreamFactory func(cfg stream.Config, listener stream.Listener) StreamConn

// DefaultStreamFactory 使用 gorilla/websocket 连接
func DefaultStreamFactory(cfg stream.Config, listener stream.Listener) StreamConn {
	return stream.New(cfg, listener)
}

// CoordinatorConfig 协调器配置
type CoordinatorConfig struct {
	StreamURL      string
	PingInterval   time.Duration
	Reconnect      bool          // 非认证原因断开后自动重连（默认关闭）
	ReconnectDelay time.Duration // 重连延迟
}

// Deps 协调器依赖
type Deps struct {
	Sessions  *session.Store
	Auth      Authenticator
	Snapshots SnapshotLoader
	Orders    OrderSubmitter
	Renderer  ports.Renderer
	Events    *events.HandlerList
	NewStream StreamFactory
}

// View 协调器状态快照（只读副本）
type View struct {
	State       State
	Identity    *domain.Identity
	Epoch       uint64
	Quotes      []domain.Quote // 按 symbol 升序
	Orders      []domain.Order // 最新在前
	StreamState stream.State
}

// Coordinator 会话同步协调器（Actor 模型）
//
// 会话、行情表、订单历史、推送连接都只在 Run 的 goroutine 中读写。
// 阻塞 IO 交给 IOExecutor，结果带着发起时的 epoch 作为命令回到主循环；epoch 不一致的结果直接丢弃。
type Coordinator struct {
	cfg       CoordinatorConfig
	cmdChan   chan Command
	done      chan struct{}
	io        *IOExecutor
	sessions  *session.Store
	renderer  ports.Renderer
	events    *events.HandlerList
	newStream StreamFactory

	// 以下状态只在主循环中访问
	ctx           context.Context
	state         State
	epoch         uint64
	sess          *domain.Session
	sessCtx       context.Context
	sessCancel    context.CancelFunc
	quotes        domain.QuoteTable
	orders        domain.OrderHistory
	stream        StreamConn
	streamSeq     uint64
	streamState   stream.State
	quotesSettled bool
	ordersSettled bool
	reconnect     *time.Timer
}

// NewCoordinator 创建协调器
func NewCoordinator(cfg CoordinatorConfig, deps Deps) *Coordinator {
	if deps.Renderer == nil {
		deps.Renderer = ports.NopRenderer{}
	}
	if deps.Events == nil {
		deps.Events = events.NewHandlerList()
	}
	if deps.NewStream == nil {
		deps.NewStream = DefaultStreamFactory
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore(nil)
	}
	return &Coordinator{
		cfg:         cfg,
		cmdChan:     make(chan Command, 256),
		done:        make(chan struct{}),
		io:          NewIOExecutor(deps.Auth, deps.Snapshots, deps.Orders),
		sessions:    deps.Sessions,
		renderer:    deps.Renderer,
		events:      deps.Events,
		newStream:   deps.NewStream,
		epoch:       1,
		quotes:      domain.QuoteTable{},
		orders:      domain.OrderHistory{},
		streamState: stream.StateAbsent,
	}
}

// Run 协调器主循环（必须在独立 goroutine 中运行）；启动时恢复一次已保存的会话
func (c *Coordinator) Run(ctx context.Context) {
	c.ctx = ctx
	defer close(c.done)

	coordinatorLog.Info("🚀 Coordinator 启动")
	if sess, ok := c.sessions.Restore(ctx); ok {
		c.startSession(sess, true)
	} else {
		c.renderer.ShowLogin("")
	}

	for {
		select {
		case cmd := <-c.cmdChan:
			c.handleCommand(cmd)
		case <-ctx.Done():
			c.shutdown()
			coordinatorLog.Info("🛑 Coordinator 停止")
			return
		}
	}
}

// Login 登录；成功后替换当前会话并进入 Bootstrapping
func (c *Coordinator) Login(ctx context.Context, username, password string) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, &LoginCommand{Username: username, Password: password, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errCoordinatorStopped
	}
}

// Logout 登出；不等待进行中的请求
func (c *Coordinator) Logout(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, &LogoutCommand{Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errCoordinatorStopped
	}
}

// SubmitOrder 提交订单；只有服务端确认后才会出现在订单历史中
//
// 没有会话时返回 ErrNoSession。
func (c *Coordinator) SubmitOrder(ctx context.Context, draft domain.Draft) (domain.Order, error) {
	reply := make(chan SubmitResult, 1)
	if err := c.send(ctx, &SubmitOrderCommand{Draft: draft, Reply: reply}); err != nil {
		return domain.Order{}, err
	}
	select {
	case res := <-reply:
		return res.Order, res.Error
	case <-ctx.Done():
		return domain.Order{}, ctx.Err()
	case <-c.done:
		return domain.Order{}, errCoordinatorStopped
	}
}

// View 返回当前状态快照
func (c *Coordinator) View(ctx context.Context) (View, error) {
	reply := make(chan ViewResult, 1)
	if err := c.send(ctx, &QueryViewCommand{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case res := <-reply:
		return res.View, res.Error
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, errCoordinatorStopped
	}
}

var errCoordinatorStopped = errors.New("coordinator stopped")

// send 阻塞投递命令，直到主循环接收、ctx 取消或协调器退出
func (c *Coordinator) send(ctx context.Context, cmd Command) error {
	select {
	case c.cmdChan <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errCoordinatorStopped
	}
}

// post 供 IO 回调使用：协调器退出后结果直接丢弃
func (c *Coordinator) post(cmd Command) {
	select {
	case c.cmdChan <- cmd:
	case <-c.done:
	}
}

// reply 非阻塞回复；Reply 容量为 1，重复回复被丢弃
func reply[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// failCommand panic 恢复后回复等待中的调用方
func failCommand(cmd Command, err error) {
	switch cmd := cmd.(type) {
	case *LoginCommand:
		reply(cmd.Reply, err)
	case *LoginResultCommand:
		reply(cmd.Reply, err)
	case *LogoutCommand:
		reply(cmd.Reply, err)
	case *SubmitOrderCommand:
		reply(cmd.Reply, SubmitResult{Error: err})
	case *SubmitResultCommand:
		reply(cmd.Reply, SubmitResult{Error: err})
	case *QueryViewCommand:
		reply(cmd.Reply, ViewResult{Error: err})
	}
}

// handleCommand 处理命令（顺序执行，无锁）
func (c *Coordinator) handleCommand(cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			coordinatorLog.Errorf("❌ Coordinator 处理命令时发生 panic: %v, 命令类型: %s", r, cmd.CommandType())
			failCommand(cmd, errors.Errorf("coordinator panic while handling %s: %v", cmd.CommandType(), r))
		}
	}()

	switch cmd := cmd.(type) {
	case *LoginCommand:
		c.handleLogin(cmd)
	case *LoginResultCommand:
		c.handleLoginResult(cmd)
	case *LogoutCommand:
		c.handleLogout(cmd)
	case *SubmitOrderCommand:
		c.handleSubmitOrder(cmd)
	case *SubmitResultCommand:
		c.handleSubmitResult(cmd)
	case *QuotesLoadedCommand:
		c.handleQuotesLoaded(cmd)
	case *OrdersLoadedCommand:
		c.handleOrdersLoaded(cmd)
	case *StreamOpenCommand:
		c.handleStreamOpen(cmd)
	case *StreamQuoteCommand:
		c.handleStreamQuote(cmd)
	case *StreamClosedCommand:
		c.handleStreamClosed(cmd)
	case *ReconnectCommand:
		c.handleReconnect(cmd)
	case *QueryViewCommand:
		reply(cmd.Reply, ViewResult{View: c.view()})
	default:
		coordinatorLog.Errorf("未知命令类型: %s", cmd.CommandType())
	}
}

func (c *Coordinator) handleLogin(cmd *LoginCommand) {
	c.io.LoginAsync(c.ctx, cmd.Username, cmd.Password, func(res api.LoginResult, err error) {
		c.post(&LoginResultCommand{Result: res, Error: err, Reply: cmd.Reply})
	})
}

func (c *Coordinator) handleLoginResult(cmd *LoginResultCommand) {
	if cmd.Error != nil {
		if ve, ok := domain.IsValidation(cmd.Error); ok {
			c.renderer.ShowMessage(fmt.Sprintf("登录失败: %s", ve.Message))
		} else {
			c.renderer.ShowMessage("登录失败: 无法连接服务器")
		}
		reply(cmd.Reply, cmd.Error)
		return
	}

	// 已有会话：静默拆除（不显示登录界面）再建立新会话
	if c.sess != nil {
		c.teardown(ReasonReplaced, false)
	}
	sess := c.sessions.Create(c.ctx, cmd.Result.Token, cmd.Result.User)
	c.startSession(sess, false)
	reply(cmd.Reply, nil)
}

func (c *Coordinator) handleLogout(cmd *LogoutCommand) {
	if c.sess != nil {
		c.teardown(ReasonLogout, true)
	}
	reply(cmd.Reply, nil)
}

func (c *Coordinator) handleSubmitOrder(cmd *SubmitOrderCommand) {
	if c.sess == nil || (c.state != StateBootstrapping && c.state != StateLive) {
		reply(cmd.Reply, SubmitResult{Error: domain.ErrNoSession})
		return
	}
	epoch := c.epoch
	c.io.SubmitOrderAsync(c.sessCtx, c.sess, cmd.Draft, func(o domain.Order, err error) {
		c.post(&SubmitResultCommand{
			Epoch:  epoch,
			Draft:  cmd.Draft,
			Result: SubmitResult{Order: o, Error: err},
			Reply:  cmd.Reply,
		})
	})
}

// handleSubmitResult 过期结果不改变状态，调用方收到 ErrNoSession
func (c *Coordinator) handleSubmitResult(cmd *SubmitResultCommand) {
	if c.isStale(cmd.Epoch) {
		reply(cmd.Reply, SubmitResult{Error: domain.ErrNoSession})
		return
	}
	defer reply(cmd.Reply, cmd.Result)

	err := cmd.Result.Error
	switch {
	case err == nil:
		metrics.ObserveOrderSubmission("confirmed")
		c.orders = c.orders.Prepend(cmd.Result.Order)
		c.renderer.RenderOrders(c.orders.Sorted())
		c.emit(events.OrderConfirmedEvent{Order: cmd.Result.Order, Timestamp: time.Now()})

	case domain.IsAuthFailure(err):
		metrics.ObserveOrderSubmission("unauthorized")
		c.authFailure("submit", err)

	default:
		reason := "下单失败"
		if ve, ok := domain.IsValidation(err); ok {
			metrics.ObserveOrderSubmission("rejected")
			reason = ve.Message
		} else {
			metrics.ObserveOrderSubmission("failed")
		}
		c.renderer.ShowMessage(reason)
		c.emit(events.OrderRejectedEvent{Draft: cmd.Draft, Reason: reason, Timestamp: time.Now()})
	}
}

// handleQuotesLoaded 快照整体替换行情表；失败保留旧行情
func (c *Coordinator) handleQuotesLoaded(cmd *QuotesLoadedCommand) {
	if c.isStale(cmd.Epoch) {
		return
	}
	c.quotesSettled = true
	if cmd.Error != nil {
		coordinatorLog.WithError(cmd.Error).Warn("行情快照加载失败，保留当前行情")
	} else {
		c.quotes = cmd.Quotes.Clone()
		c.renderer.RenderQuotes(c.quotes.Sorted())
	}
	c.maybeLive()
}

// handleOrdersLoaded 认证失败拆除会话；其它失败保留旧订单
func (c *Coordinator) handleOrdersLoaded(cmd *OrdersLoadedCommand) {
	if c.isStale(cmd.Epoch) {
		return
	}
	if cmd.Error != nil {
		if domain.IsAuthFailure(cmd.Error) {
			c.authFailure("orders", cmd.Error)
			return
		}
		coordinatorLog.WithError(cmd.Error).Warn("订单历史加载失败，保留当前订单")
	} else {
		c.orders = cmd.Orders.Clone()
		c.renderer.RenderOrders(c.orders.Sorted())
	}
	c.ordersSettled = true
	c.maybeLive()
}

func (c *Coordinator) handleStreamOpen(cmd *StreamOpenCommand) {
	if !c.isCurrentStream(cmd.Epoch, cmd.Seq) {
		return
	}
	c.setStreamState(stream.StateOpen, nil)
}

// handleStreamQuote 按到达顺序逐条覆盖
func (c *Coordinator) handleStreamQuote(cmd *StreamQuoteCommand) {
	if !c.isCurrentStream(cmd.Epoch, cmd.Seq) {
		return
	}
	c.quotes.Apply(cmd.Quote)
	c.renderer.RenderQuotes(c.quotes.Sorted())
}

func (c *Coordinator) handleStreamClosed(cmd *StreamClosedCommand) {
	if !c.isCurrentStream(cmd.Epoch, cmd.Seq) {
		return
	}
	c.setStreamState(stream.StateClosed, cmd.Error)

	if domain.IsAuthFailure(cmd.Error) {
		c.authFailure("stream", cmd.Error)
		return
	}
	if c.cfg.Reconnect && c.sess != nil {
		delay := c.cfg.ReconnectDelay
		coordinatorLog.Warnf("推送连接断开，%v 后重连", delay)
		seq := c.streamSeq
		epoch := c.epoch
		c.stopReconnect()
		c.reconnect = time.AfterFunc(delay, func() {
			c.post(&ReconnectCommand{Epoch: epoch, Seq: seq})
		})
	}
}

func (c *Coordinator) handleReconnect(cmd *ReconnectCommand) {
	if !c.isCurrentStream(cmd.Epoch, cmd.Seq) || c.sess == nil {
		return
	}
	c.reconnect = nil
	coordinatorLog.Info("🔄 重新建立推送连接")
	c.startStream()
}

// startSession 进入 Bootstrapping：并发拉取两个快照并启动推送连接
func (c *Coordinator) startSession(sess *domain.Session, restored bool) {
	sess.Epoch = c.epoch
	c.sess = sess
	sessCtx, cancel := context.WithCancel(c.ctx)
	c.sessCtx, c.sessCancel = sessCtx, cancel
	c.quotesSettled = false
	c.ordersSettled = false
	c.setState(StateBootstrapping)

	coordinatorLog.Infof("👤 会话开始: user=%s epoch=%d restored=%v", sess.Identity.Username, sess.Epoch, restored)
	c.renderer.ShowDashboard(sess.Identity)
	c.emit(events.SessionStartedEvent{Identity: sess.Identity, Restored: restored, Epoch: sess.Epoch, Timestamp: time.Now()})

	epoch := c.epoch
	c.io.LoadQuotesAsync(sessCtx, func(t domain.QuoteTable, err error) {
		c.post(&QuotesLoadedCommand{Epoch: epoch, Quotes: t, Error: err})
	})
	c.io.LoadOrdersAsync(sessCtx, sess, func(h domain.OrderHistory, err error) {
		c.post(&OrdersLoadedCommand{Epoch: epoch, Orders: h, Error: err})
	})
	c.startStream()
}

// startStream 为当前 epoch 创建新的连接实例；旧实例先关闭
func (c *Coordinator) startStream() {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	c.streamSeq++
	s := c.newStream(stream.Config{
		URL:          c.cfg.StreamURL,
		Token:        c.sess.Credential,
		Epoch:        c.epoch,
		PingInterval: c.cfg.PingInterval,
	}, &streamListener{c: c, seq: c.streamSeq})
	c.stream = s
	c.setStreamState(stream.StateConnecting, nil)
	s.Start(c.sessCtx)
}

// maybeLive 两个快照都已落定且连接已请求后进入 Live
func (c *Coordinator) maybeLive() {
	if c.state == StateBootstrapping && c.quotesSettled && c.ordersSettled && c.stream != nil {
		c.setState(StateLive)
	}
}

func (c *Coordinator) authFailure(source string, err error) {
	metrics.ObserveAuthFailure(source)
	coordinatorLog.WithError(err).Warnf("🔒 凭证被拒绝 (%s)，结束会话", source)
	c.teardown(ReasonUnauthorized, true)
}

// teardown 关闭连接、销毁会话、清空缓存并递增 epoch
func (c *Coordinator) teardown(reason string, showLogin bool) {
	if c.sess == nil {
		return
	}
	identity := c.sess.Identity
	oldEpoch := c.epoch
	c.setState(StateTerminating)

	c.stopReconnect()
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	if c.sessCancel != nil {
		c.sessCancel()
		c.sessCtx, c.sessCancel = nil, nil
	}
	c.sessions.Destroy(c.ctx)
	c.sess = nil
	c.quotes = domain.QuoteTable{}
	c.orders = domain.OrderHistory{}
	c.epoch++
	c.streamState = stream.StateAbsent
	c.setState(StateLoggedOut)

	coordinatorLog.Infof("👋 会话结束: user=%s reason=%s epoch=%d", identity.Username, reason, oldEpoch)
	c.emit(events.SessionEndedEvent{Identity: identity, Reason: reason, Epoch: oldEpoch, Timestamp: time.Now()})

	c.renderer.RenderQuotes(nil)
	c.renderer.RenderOrders(nil)
	c.renderer.RenderStreamState(c.streamState.String())
	if showLogin {
		msg := ""
		if reason == ReasonUnauthorized {
			msg = "登录已失效，请重新登录"
		}
		c.renderer.ShowLogin(msg)
	}
}

// shutdown 进程退出：关闭连接但保留已保存的凭证
func (c *Coordinator) shutdown() {
	c.stopReconnect()
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	if c.sessCancel != nil {
		c.sessCancel()
	}
}

func (c *Coordinator) stopReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Coordinator) isStale(epoch uint64) bool {
	if epoch != c.epoch || c.sess == nil {
		metrics.ObserveStaleResult()
		coordinatorLog.Debugf("丢弃过期结果: epoch=%d current=%d", epoch, c.epoch)
		return true
	}
	return false
}

func (c *Coordinator) isCurrentStream(epoch, seq uint64) bool {
	if c.isStale(epoch) {
		return false
	}
	return seq == c.streamSeq
}

func (c *Coordinator) setState(s State) {
	if c.state == s {
		return
	}
	coordinatorLog.Debugf("状态切换: %s -> %s", c.state, s)
	c.state = s
	metrics.ObserveTransition(s.String())
}

func (c *Coordinator) setStreamState(s stream.State, err error) {
	c.streamState = s
	c.renderer.RenderStreamState(s.String())
	c.emit(events.StreamStateChangedEvent{Epoch: c.epoch, State: s.String(), Err: err, Timestamp: time.Now()})
}

func (c *Coordinator) emit(ev events.Event) {
	c.events.Emit(c.ctx, ev)
}

func (c *Coordinator) view() View {
	v := View{
		State:       c.state,
		Epoch:       c.epoch,
		Quotes:      c.quotes.Sorted(),
		Orders:      c.orders.Sorted(),
		StreamState: c.streamState,
	}
	if c.sess != nil {
		id := c.sess.Identity
		v.Identity = &id
	}
	return v
}

// streamListener 把连接回调转换为命令；Close 后 ctx 取消，回调立即返回
type streamListener struct {
	c   *Coordinator
	seq uint64
}

func (l *streamListener) OnOpen(ctx context.Context, epoch uint64) {
	l.deliver(ctx, &StreamOpenCommand{Epoch: epoch, Seq: l.seq})
}

func (l *streamListener) OnQuote(ctx context.Context, epoch uint64, q domain.Quote) {
	l.deliver(ctx, &StreamQuoteCommand{Epoch: epoch, Seq: l.seq, Quote: q})
}

func (l *streamListener) OnClosed(ctx context.Context, epoch uint64, err error) {
	l.deliver(ctx, &StreamClosedCommand{Epoch: epoch, Seq: l.seq, Error: err})
}

func (l *streamListener) deliver(ctx context.Context, cmd Command) {
	if ctx.Err() != nil {
		return
	}
	select {
	case l.c.cmdChan <- cmd:
	case <-ctx.Done():
	case <-l.c.done:
	}
}
