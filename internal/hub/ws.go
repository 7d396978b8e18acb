package hub

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 推送层不做鉴权，由外层网关负责
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway WebSocket推送网关，路径 /ws/{realtime|alarms|system}
type Gateway struct {
	hub    *Hub
	logger *zap.Logger
}

// NewGateway 创建推送网关
func NewGateway(hub *Hub, logger *zap.Logger) *Gateway {
	return &Gateway{hub: hub, logger: logger}
}

// ServeHTTP 升级连接并绑定到频道
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimPrefix(r.URL.Path, "/ws/")
	switch channel {
	case ChannelRealtime, ChannelAlarms, ChannelSystem:
	default:
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := g.hub.Subscribe(channel)
	g.logger.Info("websocket subscriber connected",
		zap.String("channel", channel),
		zap.Int64("subscriber_id", sub.ID),
		zap.String("remote", r.RemoteAddr))

	go g.writeLoop(conn, sub)
	go g.readLoop(conn, sub)
}

// writeLoop 将订阅通道的消息写入连接，定期心跳
func (g *Gateway) writeLoop(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		g.hub.Unsubscribe(sub)
	}()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				g.logger.Debug("websocket write failed, dropping subscriber",
					zap.Int64("subscriber_id", sub.ID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop 只消费控制帧，探测断连
func (g *Gateway) readLoop(conn *websocket.Conn, sub *Subscriber) {
	defer func() {
		conn.Close()
		g.hub.Unsubscribe(sub)
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
