package tui

import (
	"sync"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/ports"
	"github.com/betbot/tradedash/pkg/sigchan"
)

// Screen 当前界面
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenDashboard
)

// Frame 渲染所需的全部数据（只读副本）
type Frame struct {
	Screen      Screen
	LoginReason string
	Identity    domain.Identity
	Quotes      []domain.Quote
	Orders      []domain.Order
	StreamState string
	Message     string
}

// Renderer 实现 ports.Renderer
//
// 协调器在自己的 goroutine 中调用这些方法；这里只更新 Frame 并发出重绘信号，
// 多次更新在界面读取之前合并为一次重绘。
type Renderer struct {
	mu     sync.Mutex
	frame  Frame
	redraw *sigchan.Chan
}

var _ ports.Renderer = (*Renderer)(nil)

func NewRenderer() *Renderer {
	return &Renderer{
		frame:  Frame{Screen: ScreenLogin, StreamState: "absent"},
		redraw: sigchan.New(1),
	}
}

// Frame 返回当前帧的副本
func (r *Renderer) Frame() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.frame
	f.Quotes = append([]domain.Quote(nil), r.frame.Quotes...)
	f.Orders = append([]domain.Order(nil), r.frame.Orders...)
	return f
}

func (r *Renderer) update(fn func(f *Frame)) {
	r.mu.Lock()
	fn(&r.frame)
	r.mu.Unlock()
	r.redraw.Emit()
}

func (r *Renderer) ShowLogin(reason string) {
	r.update(func(f *Frame) {
		f.Screen = ScreenLogin
		f.LoginReason = reason
		f.Identity = domain.Identity{}
	})
}

func (r *Renderer) ShowDashboard(identity domain.Identity) {
	r.update(func(f *Frame) {
		f.Screen = ScreenDashboard
		f.Identity = identity
		f.LoginReason = ""
		f.Message = ""
	})
}

func (r *Renderer) RenderQuotes(quotes []domain.Quote) {
	r.update(func(f *Frame) { f.Quotes = quotes })
}

func (r *Renderer) RenderOrders(orders []domain.Order) {
	r.update(func(f *Frame) { f.Orders = orders })
}

func (r *Renderer) RenderStreamState(state string) {
	r.update(func(f *Frame) { f.StreamState = state })
}

func (r *Renderer) ShowMessage(msg string) {
	r.update(func(f *Frame) { f.Message = msg })
}
