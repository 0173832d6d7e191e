package services

import (
	"github.com/betbot/tradedash/internal/api"
	"github.com/betbot/tradedash/internal/domain"
)

// CommandType 命令类型
type CommandType string

const (
	CmdLogin        CommandType = "login"
	CmdLoginResult  CommandType = "login_result"
	CmdLogout       CommandType = "logout"
	CmdSubmitOrder  CommandType = "submit_order"
	CmdSubmitResult CommandType = "submit_result"
	CmdQuotesLoaded CommandType = "quotes_loaded"
	CmdOrdersLoaded CommandType = "orders_loaded"
	CmdStreamOpen   CommandType = "stream_open"
	CmdStreamQuote  CommandType = "stream_quote"
	CmdStreamClosed CommandType = "stream_closed"
	CmdReconnect    CommandType = "reconnect"
	CmdQueryView    CommandType = "query_view"
)

// Command 协调器命令（主循环唯一入口）
type Command interface {
	CommandType() CommandType
}

// 用户意图

type LoginCommand struct {
	Username string
	Password string
	Reply    chan error
}

type LogoutCommand struct {
	Reply chan error
}

type SubmitOrderCommand struct {
	Draft domain.Draft
	Reply chan SubmitResult
}

// SubmitResult 下单结果
type SubmitResult struct {
	Order domain.Order
	Error error
}

type QueryViewCommand struct {
	Reply chan ViewResult
}

// ViewResult 状态快照查询结果
type ViewResult struct {
	View  View
	Error error
}

// IO 结果；Epoch 为发起时的会话 epoch

type LoginResultCommand struct {
	Result api.LoginResult
	Error  error
	Reply  chan error
}

type SubmitResultCommand struct {
	Epoch  uint64
	Draft  domain.Draft
	Result SubmitResult
	Reply  chan SubmitResult
}

type QuotesLoadedCommand struct {
	Epoch  uint64
	Quotes domain.QuoteTable
	Error  error
}

type OrdersLoadedCommand struct {
	Epoch  uint64
	Orders domain.OrderHistory
	Error  error
}

// 推送连接事件；Seq 区分同一 epoch 内的重连实例

type StreamOpenCommand struct {
	Epoch uint64
	Seq   uint64
}

type StreamQuoteCommand struct {
	Epoch uint64
	Seq   uint64
	Quote domain.Quote
}

type StreamClosedCommand struct {
	Epoch uint64
	Seq   uint64
	Error error
}

type ReconnectCommand struct {
	Epoch uint64
	Seq   uint64
}

func (*LoginCommand) CommandType() CommandType        { return CmdLogin }
func (*LoginResultCommand) CommandType() CommandType  { return CmdLoginResult }
func (*LogoutCommand) CommandType() CommandType       { return CmdLogout }
func (*SubmitOrderCommand) CommandType() CommandType  { return CmdSubmitOrder }
func (*SubmitResultCommand) CommandType() CommandType { return CmdSubmitResult }
func (*QuotesLoadedCommand) CommandType() CommandType { return CmdQuotesLoaded }
func (*OrdersLoadedCommand) CommandType() CommandType { return CmdOrdersLoaded }
func (*StreamOpenCommand) CommandType() CommandType   { return CmdStreamOpen }
func (*StreamQuoteCommand) CommandType() CommandType  { return CmdStreamQuote }
func (*StreamClosedCommand) CommandType() CommandType { return CmdStreamClosed }
func (*ReconnectCommand) CommandType() CommandType    { return CmdReconnect }
func (*QueryViewCommand) CommandType() CommandType    { return CmdQueryView }
