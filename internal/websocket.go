package internal

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   傳輸層如何把「一個 WebSocket 連接」交給中繼引擎，並保證清理只發生一次？
//
// 核心挑戰：
//   1. 連接管理：建立、關閉、錯誤都要通知引擎，且只通知一次
//   2. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   3. 慢客戶端：廣播不能被任何一個收件者拖慢
//
// 設計方案：
//   ✅ 每個連接兩個 goroutine：readPump 依序分派，writePump 負責寫入與 Ping
//   ✅ 緩衝 channel：Send 非阻塞，滿了直接丟棄（不重試）
//   ✅ readPump 結束 = 連接終止：唯一呼叫 Relay.Disconnect 的地方

// WebSocketHub WebSocket 連接中心
//
// 只負責連接本身（升級、讀寫、心跳、關閉），
// 房間與廣播邏輯全部在 Relay。
type WebSocketHub struct {
	relay       *Relay
	cfg         *Config
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[string]*Connection // connID -> Connection
	mu          sync.RWMutex
	stopped     bool
	wg          sync.WaitGroup
}

// Connection 一個 WebSocket 連接，實作 Peer
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Hub  *WebSocketHub

	send      chan []byte
	open      atomic.Bool
	lastPing  atomic.Int64 // unix nano
	mu        sync.Mutex   // 保護 send 的關閉與寫入
	closeOnce sync.Once    // 確保 channel 只關閉一次
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(relay *Relay, cfg *Config, logger *slog.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		relay:       relay,
		cfg:         cfg,
		logger:      logger,
		connections: make(map[string]*Connection),
	}

	hub.upgrader = websocket.Upgrader{
		CheckOrigin:     hub.checkOrigin,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
	}

	return hub
}

// checkOrigin 來源檢查
//
// 沒有 Origin 標頭的請求（非瀏覽器客戶端）一律允許。
func (hub *WebSocketHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || hub.cfg.AllowAnyOrigin() {
		return true
	}
	for _, allowed := range hub.cfg.WebSocket.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// ServeWS 處理 WebSocket 連接
//
// 連接建立時不需要任何參數：房間與玩家由之後的 join 訊息決定。
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	hub.mu.RLock()
	stopped := hub.stopped
	hub.mu.RUnlock()
	if stopped {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	// 升級為 WebSocket 連接（失敗時 upgrader 已寫回 HTTP 錯誤）
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("升級 WebSocket 失敗", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	connection := &Connection{
		Conn: conn,
		Hub:  hub,
		send: make(chan []byte, hub.cfg.WebSocket.SendBufferSize),
	}
	connection.open.Store(true)
	connection.lastPing.Store(time.Now().UnixNano())

	// 註冊到引擎，取得連接 ID
	connection.ID = hub.relay.Connect(connection)

	if !hub.register(connection) {
		// Stop 與升級同時發生
		hub.relay.Disconnect(connection.ID)
		connection.close()
		_ = conn.Close()
		return
	}

	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"conn_id", connection.ID,
		"remote_addr", r.RemoteAddr)
}

// register 註冊連接，並為讀寫兩個 goroutine 預留 WaitGroup 計數
func (hub *WebSocketHub) register(conn *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.stopped {
		return false
	}
	hub.connections[conn.ID] = conn
	hub.wg.Add(2)
	return true
}

// unregister 取消註冊連接
func (hub *WebSocketHub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, exists := hub.connections[conn.ID]; exists && actual == conn {
		delete(hub.connections, conn.ID)
	}
}

// ConnectionCount 獲取連接數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// Stop 停止 WebSocket Hub
//
// 關閉所有連接並等待讀寫 goroutine 結束；
// 每個 readPump 結束時各自完成引擎端的清理。
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	hub.stopped = true
	conns := make([]*Connection, 0, len(hub.connections))
	for _, conn := range hub.connections {
		conns = append(conns, conn)
	}
	hub.mu.Unlock()

	for _, conn := range conns {
		// 先關閉 send channel（writePump 會送出 close frame），再關閉底層連接
		conn.close()
		_ = conn.Conn.Close()
	}

	hub.wg.Wait()
	hub.logger.Info("WebSocket Hub 已停止")
}

// IsOpen 連接是否可發送
func (c *Connection) IsOpen() bool {
	return c.open.Load()
}

// Send 非阻塞發送
//
// 連接已關閉回傳 ErrPeerClosed，緩衝區滿回傳 ErrSendBufferFull。
// 兩種情況訊息都直接丟棄。
func (c *Connection) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open.Load() {
		return ErrPeerClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// LastPing 最後一次收到 Pong 的時間（尚未收到時為連接建立時間）
func (c *Connection) LastPing() time.Time {
	return time.Unix(0, c.lastPing.Load())
}

// close 標記為不可發送並關閉 send channel
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.open.Store(false)
		close(c.send)
		c.mu.Unlock()
	})
}

// readPump 讀取客戶端消息
//
// 心跳（讀取端）：
//   - PongWait 內沒有收到任何訊息（包括 Pong）就關閉連接
//   - 收到 Pong → 重置讀取期限
//
// 讀取錯誤（對端關閉、網絡錯誤、超時、訊息過大）一律視為連接終止，
// 在 defer 中執行唯一一次的清理。
func (c *Connection) readPump() {
	defer func() {
		c.close()
		c.Hub.unregister(c)
		c.Hub.relay.Disconnect(c.ID)
		_ = c.Conn.Close()
		c.Hub.logger.Info("WebSocket 連接關閉",
			"conn_id", c.ID,
			"last_pong", c.LastPing())
		c.Hub.wg.Done()
	}()

	ws := c.Hub.cfg.WebSocket
	c.Conn.SetReadLimit(ws.MaxMessageSize)

	if err := c.Conn.SetReadDeadline(time.Now().Add(ws.PongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		c.lastPing.Store(time.Now().UnixNano())
		return c.Conn.SetReadDeadline(time.Now().Add(ws.PongWait))
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID)
			}
			break
		}

		// 文字與二進位訊息都當作 JSON 處理
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			c.Hub.relay.HandleMessage(c.ID, message)
		}
	}
}

// writePump 寫入消息到客戶端
//
// 心跳（發送端）：每 PingInterval 發送 Ping，客戶端自動回覆 Pong。
// 每條訊息一個文字 frame，不合併。
func (c *Connection) writePump() {
	ws := c.Hub.cfg.WebSocket
	ticker := time.NewTicker(ws.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.Conn.Close()
		c.Hub.wg.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(ws.WriteWait)); err != nil {
				return
			}
			if !ok {
				// send 被關閉，嘗試送出 close frame，忽略錯誤（連接可能已關閉）
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("發送消息失敗", "error", err, "conn_id", c.ID)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(ws.WriteWait)); err != nil {
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
