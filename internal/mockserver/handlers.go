package mockserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  user   `json:"user"`
}

type priceJSON struct {
	Symbol string      `json:"symbol"`
	Price  json.Number `json:"price"`
}

type createOrderRequest struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type orderJSON struct {
	ID        int64       `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      string      `json:"side"`
	Quantity  int64       `json:"quantity"`
	Price     json.Number `json:"price"`
	Timestamp time.Time   `json:"timestamp"`
	UserID    string      `json:"user_id,omitempty"`
}

// number 以 JSON 数字输出 decimal（decimal 默认序列化为字符串）
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func toOrderJSON(o orderRow) orderJSON {
	return orderJSON{
		ID:        o.ID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  o.Quantity,
		Price:     number(o.Price),
		Timestamp: o.CreatedAt,
		UserID:    o.UserID,
	}
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.loginLimiter.Allow(req.Username) {
		log.Warnf("⚠️ 登录尝试过于频繁: user=%s", req.Username)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return
	}
	u, err := s.auth.authenticate(req.Username, req.Password)
	if err != nil {
		log.Infof("登录失败: user=%s", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	token, err := s.auth.generateToken(u)
	if err != nil {
		log.Errorf("签发 token 失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	s.loginLimiter.Reset(u.Username)
	log.Infof("✅ 登录成功: user=%s", u.Username)
	c.JSON(http.StatusOK, loginResponse{Token: token, User: u})
}

func (s *Server) handlePrices(c *gin.Context) {
	prices := s.sim.Prices()
	out := make([]priceJSON, 0, len(prices))
	for _, p := range prices {
		out = append(out, priceJSON{Symbol: p.Symbol, Price: number(p.Price)})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleOrdersList(c *gin.Context) {
	rows, err := s.listOrders(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		log.Errorf("查询订单失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load orders"})
		return
	}
	out := make([]orderJSON, 0, len(rows))
	for _, o := range rows {
		out = append(out, toOrderJSON(o))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleOrdersCreate(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg := validateOrder(req, s.sim); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	created, err := s.insertOrder(c.Request.Context(), orderRow{
		UserID:    c.GetString(ctxUserID),
		Symbol:    req.Symbol,
		Side:      strings.ToLower(req.Side),
		Quantity:  req.Quantity,
		Price:     req.Price,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Errorf("保存订单失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store order"})
		return
	}
	log.Infof("📝 订单已创建: id=%d user=%s %s %s qty=%d price=%s",
		created.ID, c.GetString(ctxUsername), created.Side, created.Symbol, created.Quantity, created.Price)
	c.JSON(http.StatusCreated, toOrderJSON(created))
}

// validateOrder 返回面向用户的错误消息；合法时返回空串
func validateOrder(req createOrderRequest, sim *Simulator) string {
	switch side := strings.ToLower(req.Side); {
	case side != "buy" && side != "sell":
		return "side must be 'buy' or 'sell'"
	case req.Quantity <= 0:
		return "quantity must be greater than 0"
	case !req.Price.IsPositive():
		return "price must be greater than 0"
	}
	if _, ok := sim.Price(req.Symbol); !ok {
		return "invalid symbol"
	}
	return ""
}
