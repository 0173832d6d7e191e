package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/tradedash/internal/domain"
)

// Controller 界面向协调器发起的用户意图（services.Coordinator 实现）
type Controller interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	SubmitOrder(ctx context.Context, draft domain.Draft) (domain.Order, error)
}

type redrawMsg struct{}

type loginDoneMsg struct{ err error }

type logoutDoneMsg struct{ err error }

type submitDoneMsg struct {
	order domain.Order
	err   error
}

const (
	fieldUsername = iota
	fieldPassword
)

const (
	fieldQuantity = iota
	fieldPrice
)

// Model bubbletea 模型：登录表单 + 行情/下单/订单面板
type Model struct {
	ctx   context.Context
	ctrl  Controller
	r     *Renderer
	frame Frame
	width int

	// 登录表单
	username   string
	password   string
	loginField int
	loggingIn  bool

	// 下单表单
	selected   int
	side       domain.Side
	quantity   string
	price      string
	orderField int
	submitting bool

	status    string
	statusErr bool
}

func NewModel(ctx context.Context, ctrl Controller, r *Renderer) Model {
	return Model{
		ctx:   ctx,
		ctrl:  ctrl,
		r:     r,
		frame: r.Frame(),
		side:  domain.SideBuy,
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitRedraw()
}

// waitRedraw 等待渲染器的下一次重绘信号
func (m Model) waitRedraw() tea.Cmd {
	return func() tea.Msg {
		if m.r.redraw.Wait(m.ctx) {
			return redrawMsg{}
		}
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case redrawMsg:
		m = m.applyFrame(m.r.Frame())
		return m, m.waitRedraw()

	case loginDoneMsg:
		m.loggingIn = false
		if msg.err != nil {
			m.setError(describeError(msg.err))
		} else {
			m.password = ""
			m.setStatus("")
		}
		return m, nil

	case logoutDoneMsg:
		if msg.err != nil {
			m.setError(describeError(msg.err))
		}
		return m, nil

	case submitDoneMsg:
		m.submitting = false
		if msg.err != nil {
			m.setError("下单失败: " + describeError(msg.err))
			return m, nil
		}
		o := msg.order
		m.quantity = ""
		m.setStatus(fmt.Sprintf("✅ 订单已确认 #%s %s %s %d @ %s", o.ID, o.Side, o.Symbol, o.Quantity, o.Price.StringFixed(2)))
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.frame.Screen == ScreenLogin {
			return m.updateLogin(msg)
		}
		return m.updateDashboard(msg)
	}
	return m, nil
}

func (m Model) applyFrame(f Frame) Model {
	if f.Screen == ScreenLogin && m.frame.Screen != ScreenLogin {
		m.password = ""
		m.loginField = fieldPassword
		m.submitting = false
	}
	if f.Screen == ScreenDashboard && m.frame.Screen != ScreenDashboard {
		m.selected = 0
		m.quantity = ""
		m.price = ""
		m.orderField = fieldQuantity
	}
	if f.Message != "" && f.Message != m.frame.Message {
		m.setError(f.Message)
	}
	if m.selected >= len(f.Quotes) {
		m.selected = 0
	}
	if m.price == "" && m.selected < len(f.Quotes) {
		m.price = f.Quotes[m.selected].LastPrice.String()
	}
	m.frame = f
	return m
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.loginField = 1 - m.loginField
		return m, nil
	case tea.KeyBackspace:
		if m.loginField == fieldUsername {
			m.username = dropLast(m.username)
		} else {
			m.password = dropLast(m.password)
		}
		return m, nil
	case tea.KeyRunes:
		if m.loginField == fieldUsername {
			m.username += strings.TrimSpace(string(msg.Runes))
		} else {
			m.password += string(msg.Runes)
		}
		return m, nil
	case tea.KeyEnter:
		if m.loginField == fieldUsername {
			m.loginField = fieldPassword
			return m, nil
		}
		if m.loggingIn {
			return m, nil
		}
		if m.username == "" || m.password == "" {
			m.setError("请输入用户名和密码")
			return m, nil
		}
		m.loggingIn = true
		m.setStatus("登录中...")
		return m, m.loginCmd(m.username, m.password)
	}
	return m, nil
}

func (m Model) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyCtrlL:
		return m, m.logoutCmd()
	case tea.KeyUp:
		m.selectQuote(m.selected - 1)
		return m, nil
	case tea.KeyDown:
		m.selectQuote(m.selected + 1)
		return m, nil
	case tea.KeyTab, tea.KeyShiftTab:
		m.orderField = 1 - m.orderField
		return m, nil
	case tea.KeyBackspace:
		if m.orderField == fieldQuantity {
			m.quantity = dropLast(m.quantity)
		} else {
			m.price = dropLast(m.price)
		}
		return m, nil
	case tea.KeyEnter:
		if m.submitting {
			return m, nil
		}
		draft, err := m.draft()
		if err != nil {
			m.setError(err.Error())
			return m, nil
		}
		m.submitting = true
		m.setStatus(fmt.Sprintf("提交中: %s %s %d @ %s", draft.Side, draft.Symbol, draft.Quantity, draft.Price))
		return m, m.submitCmd(draft)
	case tea.KeyRunes:
		for _, ch := range msg.Runes {
			switch {
			case ch == 'b':
				m.side = domain.SideBuy
			case ch == 's':
				m.side = domain.SideSell
			case ch == 'q':
				return m, tea.Quit
			case ch >= '0' && ch <= '9', ch == '.' && m.orderField == fieldPrice:
				if m.orderField == fieldQuantity {
					m.quantity += string(ch)
				} else {
					m.price += string(ch)
				}
			}
		}
		return m, nil
	}
	return m, nil
}

// selectQuote 选择标的并自动填入当前价格
func (m *Model) selectQuote(i int) {
	n := len(m.frame.Quotes)
	if n == 0 {
		return
	}
	m.selected = (i%n + n) % n
	m.price = m.frame.Quotes[m.selected].LastPrice.String()
}

// draft 由表单构造订单草稿，并做提交前检查
func (m Model) draft() (domain.Draft, error) {
	if m.selected >= len(m.frame.Quotes) {
		return domain.Draft{}, errors.New("没有可选的标的")
	}
	d := domain.Draft{Symbol: m.frame.Quotes[m.selected].Symbol, Side: m.side}

	if m.quantity != "" {
		q, err := strconv.ParseInt(m.quantity, 10, 64)
		if err != nil {
			return domain.Draft{}, errors.New("数量必须是整数")
		}
		d.Quantity = q
	}
	if m.price != "" {
		p, err := decimal.NewFromString(m.price)
		if err != nil {
			return domain.Draft{}, errors.New("价格格式不正确")
		}
		d.Price = p
	}
	if err := d.Validate(); err != nil {
		return domain.Draft{}, errors.New(describeDraftError(err))
	}
	return d, nil
}

func (m Model) loginCmd(username, password string) tea.Cmd {
	return func() tea.Msg {
		return loginDoneMsg{err: m.ctrl.Login(m.ctx, username, password)}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	return func() tea.Msg {
		return logoutDoneMsg{err: m.ctrl.Logout(m.ctx)}
	}
}

func (m Model) submitCmd(d domain.Draft) tea.Cmd {
	return func() tea.Msg {
		o, err := m.ctrl.SubmitOrder(m.ctx, d)
		return submitDoneMsg{order: o, err: err}
	}
}

func (m *Model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

func (m *Model) setError(s string) {
	m.status, m.statusErr = s, true
}

func dropLast(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return string(r[:len(r)-1])
}

// describeError 把协调器返回的错误转换为提示文案
func describeError(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsAuthFailure(err):
		return "登录已失效，请重新登录"
	case errors.Is(err, domain.ErrNoSession):
		return "尚未登录"
	case domain.IsTransport(err):
		return "网络错误，请稍后重试"
	}
	if ve, ok := domain.IsValidation(err); ok {
		return ve.Message
	}
	return err.Error()
}

func describeDraftError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	switch verrs[0].Field() {
	case "Quantity":
		return "数量必须大于等于 1"
	case "Side":
		return "方向必须是 buy 或 sell"
	case "Symbol":
		return "请选择标的"
	default:
		return verrs[0].Error()
	}
}
