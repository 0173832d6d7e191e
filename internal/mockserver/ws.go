package mockserver

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type updateJSON struct {
	Symbol    string      `json:"symbol"`
	Price     json.Number `json:"price"`
	Change    json.Number `json:"change"`
	ChangePct json.Number `json:"changePct"`
}

func toUpdateJSON(u PriceUpdate) updateJSON {
	return updateJSON{
		Symbol:    u.Symbol,
		Price:     number(u.Price),
		Change:    number(u.Change),
		ChangePct: number(u.ChangePct),
	}
}

// handleStream 握手前校验 Bearer token；先推送全量价格（change 为 0），再转发模拟器更新
func (s *Server) handleStream(c *gin.Context) {
	token, ok := bearerToken(c.Request)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		return
	}
	u, err := s.auth.validateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	if !s.trackConn(conn, token) {
		return
	}
	defer s.forgetConn(conn)

	updates := s.sim.Subscribe()
	defer s.sim.Unsubscribe(updates)

	log.Infof("🔌 推送连接建立: user=%s", u.Username)
	defer log.Infof("🔌 推送连接断开: user=%s", u.Username)

	for _, p := range s.sim.Prices() {
		if err := conn.WriteJSON(toUpdateJSON(p)); err != nil {
			log.Debugf("发送初始价格失败: %v", err)
			return
		}
	}

	// 读循环只用于感知断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Debugf("WebSocket read error: %v", err)
				}
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-done
	}()

	for {
		select {
		case <-done:
			return
		case update := <-updates:
			if err := conn.WriteJSON(toUpdateJSON(update)); err != nil {
				log.Debugf("WebSocket write error: %v", err)
				return
			}
		}
	}
}
