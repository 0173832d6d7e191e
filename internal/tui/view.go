package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/betbot/tradedash/internal/domain"
)

const maxOrderRows = 15

func (m Model) View() string {
	var s strings.Builder
	if m.frame.Screen == ScreenLogin {
		s.WriteString(m.loginView())
	} else {
		s.WriteString(m.dashboardView())
	}
	s.WriteString("\n\n")
	if m.status != "" {
		if m.statusErr {
			s.WriteString(downStyle.Render(m.status))
		} else {
			s.WriteString(m.status)
		}
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) loginView() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Trading Dashboard · 登录"))
	s.WriteString("\n\n")
	if m.frame.LoginReason != "" {
		s.WriteString(warnStyle.Render(m.frame.LoginReason))
		s.WriteString("\n\n")
	}
	s.WriteString(field("用户名", m.username, m.loginField == fieldUsername))
	s.WriteString("\n")
	s.WriteString(field("密码  ", strings.Repeat("*", len([]rune(m.password))), m.loginField == fieldPassword))
	s.WriteString("\n\n")
	s.WriteString(mutedStyle.Render("tab 切换 · enter 登录 · esc 退出"))
	return borderStyle.Render(s.String())
}

func field(label, value string, focused bool) string {
	if focused {
		return focusStyle.Render("> "+label+": ") + value + focusStyle.Render("█")
	}
	return "  " + label + ": " + value
}

func (m Model) dashboardView() string {
	var s strings.Builder

	state := m.frame.StreamState
	header := headerStyle.Render(fmt.Sprintf("Trading Dashboard | %s", m.frame.Identity.Username))
	s.WriteString(header)
	s.WriteString("  行情推送: ")
	s.WriteString(streamStyle(state).Render("● " + state))
	s.WriteString("\n\n")

	left := lipgloss.JoinVertical(lipgloss.Left, m.quotesView(), "", m.orderFormView())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", m.ordersView()))
	s.WriteString("\n\n")
	s.WriteString(mutedStyle.Render("↑/↓ 选择标的 · b/s 买/卖 · tab 数量/价格 · enter 下单 · ctrl+l 登出 · q 退出"))
	return s.String()
}

func (m Model) quotesView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("行情"))
	s.WriteString("\n")
	s.WriteString(mutedStyle.Render(fmt.Sprintf("%-6s %12s %10s %9s", "代码", "价格", "涨跌", "涨跌幅")))
	s.WriteString("\n")
	if len(m.frame.Quotes) == 0 {
		s.WriteString("  --\n")
	}
	for i, q := range m.frame.Quotes {
		line := fmt.Sprintf("%-6s %12s ", q.Symbol, q.LastPrice.StringFixed(2))
		change := fmt.Sprintf("%10s %8s%%", signed(q.AbsoluteChange), signed(q.PercentChange))
		switch {
		case q.AbsoluteChange.IsPositive():
			change = upStyle.Render(change)
		case q.AbsoluteChange.IsNegative():
			change = downStyle.Render(change)
		}
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		s.WriteString(line + change + "\n")
	}
	return borderStyle.Render(s.String())
}

func (m Model) orderFormView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("下单"))
	s.WriteString("\n")

	symbol := "--"
	if m.selected < len(m.frame.Quotes) {
		symbol = m.frame.Quotes[m.selected].Symbol
	}
	side := upStyle.Render("BUY")
	if m.side == domain.SideSell {
		side = downStyle.Render("SELL")
	}
	s.WriteString(fmt.Sprintf("  标的: %s   方向: %s\n", symbol, side))
	s.WriteString(field("数量", m.quantity, m.orderField == fieldQuantity))
	s.WriteString("\n")
	s.WriteString(field("价格", m.price, m.orderField == fieldPrice))
	if m.submitting {
		s.WriteString("\n" + warnStyle.Render("提交中..."))
	}
	return borderStyle.Render(s.String())
}

func (m Model) ordersView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(fmt.Sprintf("订单 (%d)", len(m.frame.Orders))))
	s.WriteString("\n")
	s.WriteString(mutedStyle.Render(fmt.Sprintf("%-5s %-8s %-6s %-4s %6s %10s %12s", "ID", "时间", "代码", "方向", "数量", "价格", "金额")))
	s.WriteString("\n")
	if len(m.frame.Orders) == 0 {
		s.WriteString("  暂无订单\n")
	}
	for i, o := range m.frame.Orders {
		if i >= maxOrderRows {
			s.WriteString(mutedStyle.Render(fmt.Sprintf("  ... 还有 %d 条", len(m.frame.Orders)-maxOrderRows)))
			s.WriteString("\n")
			break
		}
		side := upStyle.Render(fmt.Sprintf("%-4s", o.Side))
		if o.Side == domain.SideSell {
			side = downStyle.Render(fmt.Sprintf("%-4s", o.Side))
		}
		s.WriteString(fmt.Sprintf("%-5s %-8s %-6s %s %6d %10s %12s\n",
			o.ID, o.PlacedAt.Local().Format("15:04:05"), o.Symbol, side, o.Quantity,
			o.Price.StringFixed(2), o.Total().StringFixed(2)))
	}
	return borderStyle.Render(s.String())
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}
