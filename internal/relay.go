package internal

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 系統設計問題：
//   如何把一個連接送來的訊息，正確地轉發給同房間的其他所有人？
//
// 核心挑戰：
//   1. 會話狀態：每個連接只能綁定一次 (roomID, playerID)
//   2. 排除自己：廣播永遠不回送給發送者
//   3. 存活性：一條壞訊息、一個慢連接都不能影響其他人
//   4. 清理一次：leave / 關閉 / 錯誤走同一條清理路徑，且冪等
//
// 設計方案：
//   ✅ 連接表：connID(UUID) → Session，明確擁有的會話記錄
//   ✅ 邊界解碼：訊息只解碼一次成 MessageKind
//   ✅ 快照廣播：鎖內取成員快照，鎖外非阻塞發送
//   ✅ 終態機：terminated 之後所有操作都是 no-op

// Relay 中繼引擎
type Relay struct {
	rooms    *Registry
	metrics  *Metrics
	logger   *slog.Logger
	sessions map[string]*Session // connID -> Session
	mu       sync.RWMutex
}

// NewRelay 創建中繼引擎
//
// metrics 為 nil 時會建立一組新的指標。
func NewRelay(rooms *Registry, metrics *Metrics, logger *slog.Logger) *Relay {
	if metrics == nil {
		metrics = NewMetrics(rooms)
	}
	return &Relay{
		rooms:    rooms,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Rooms 房間註冊表
func (r *Relay) Rooms() *Registry {
	return r.rooms
}

// Metrics 指標
func (r *Relay) Metrics() *Metrics {
	return r.metrics
}

// Connect 登記新連接，回傳連接 ID
//
// 新會話處於 unjoined 狀態，在收到有效的 join 之前不能觸發廣播。
func (r *Relay) Connect(peer Peer) string {
	connID := uuid.NewString()

	r.mu.Lock()
	r.sessions[connID] = newSession(connID, peer)
	r.mu.Unlock()

	r.metrics.connectionOpened()
	r.logger.Debug("連接已登記", "conn_id", connID)

	return connID
}

// Session 查詢連接的會話
func (r *Relay) Session(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.sessions[connID]
	return s, exists
}

// ConnectionCount 目前登記的連接數
func (r *Relay) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// HandleMessage 處理一條入站訊息
//
// 同一個連接的訊息必須依序呼叫（傳輸層每個連接一個讀取 goroutine）。
// 任何無法處理的情況都只丟棄這條訊息，不回應、不斷線。
func (r *Relay) HandleMessage(connID string, raw []byte) {
	session, exists := r.Session(connID)
	if !exists {
		r.logger.Debug("未知連接的訊息", "conn_id", connID)
		return
	}

	msg, err := DecodeMessage(raw)
	if err != nil {
		r.metrics.messageDropped(DropMalformed)
		r.logger.Debug("丟棄無法解析的訊息", "conn_id", connID, "error", err)
		return
	}
	r.metrics.messageReceived(msg.Kind)

	switch msg.Kind {
	case KindJoin:
		r.handleJoin(session, msg)
	case KindLeave:
		r.handleLeave(session, msg)
	case KindPassThrough:
		r.handlePassThrough(session, msg)
	default:
		r.metrics.messageDropped(DropUnknown)
		r.logger.Debug("忽略未知訊息類型", "conn_id", connID, "type", msg.Type)
	}
}

// handleJoin 綁定會話、加入房間、通知其他成員
func (r *Relay) handleJoin(session *Session, msg Message) {
	if msg.RoomID == "" || msg.PlayerID == "" {
		r.metrics.messageDropped(DropInvalid)
		r.logger.Debug("join 缺少 roomId 或 playerId", "conn_id", session.ConnID)
		return
	}

	// 綁定只設定一次；已綁定或已終止的連接再次 join 直接拒絕
	if !session.bind(msg.RoomID, msg.PlayerID) {
		reason := DropRejoin
		if session.State() == StateTerminated {
			reason = DropNotJoined
		}
		r.metrics.messageDropped(reason)
		r.logger.Debug("拒絕 join",
			"conn_id", session.ConnID,
			"state", session.State(),
			"room_id", msg.RoomID,
			"player_id", msg.PlayerID)
		return
	}

	created := r.rooms.AddMember(msg.RoomID, msg.PlayerID, session.Peer)

	// bind 成功時會話已是 joined；Disconnect 若已看到 joined 並扣掉計數，
	// 這裡的轉換讓 unjoined / joined 兩個標籤都歸零
	r.metrics.sessionJoined()

	// Close 可能在 bind 與 AddMember 之間終止了會話：撤銷剛加入的成員
	if session.State() != StateJoined {
		r.rooms.Release(msg.RoomID, msg.PlayerID, session.Peer)
		r.logger.Debug("join 期間連接已關閉，撤銷加入",
			"conn_id", session.ConnID,
			"room_id", msg.RoomID,
			"player_id", msg.PlayerID)
		return
	}

	r.logger.Info("玩家加入房間",
		"conn_id", session.ConnID,
		"room_id", msg.RoomID,
		"player_id", msg.PlayerID,
		"room_created", created)

	notice, err := EncodeJoinNotice(msg.RoomID, msg.PlayerID)
	if err != nil {
		r.logger.Error("序列化 join 通知失敗", "error", err)
		return
	}
	r.Broadcast(msg.RoomID, msg.PlayerID, notice)
}

// handleLeave 先廣播再清理：其他成員在收到 leave 時仍看得到發送者
func (r *Relay) handleLeave(session *Session, msg Message) {
	roomID, playerID, ok := session.Binding()
	if !ok {
		r.metrics.messageDropped(DropNotJoined)
		r.logger.Debug("未加入房間的 leave", "conn_id", session.ConnID)
		return
	}

	r.Broadcast(roomID, playerID, msg.Raw)

	if prev := r.cleanup(session); prev == StateJoined {
		r.metrics.sessionLeft()
	}

	r.logger.Info("玩家離開房間",
		"conn_id", session.ConnID,
		"room_id", roomID,
		"player_id", playerID)
}

// handlePassThrough 原樣轉發
func (r *Relay) handlePassThrough(session *Session, msg Message) {
	roomID, playerID, ok := session.Binding()
	if !ok {
		r.metrics.messageDropped(DropNotJoined)
		r.logger.Debug("未加入房間，忽略訊息",
			"conn_id", session.ConnID,
			"type", msg.Type)
		return
	}

	r.Broadcast(roomID, playerID, msg.Raw)
}

// Disconnect 連接關閉或出錯時的清理
//
// 冪等：連接從連接表移除後，再次呼叫沒有任何效果。
func (r *Relay) Disconnect(connID string) {
	r.mu.Lock()
	session, exists := r.sessions[connID]
	if exists {
		delete(r.sessions, connID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	prev := r.cleanup(session)
	r.metrics.connectionClosed(prev)

	r.logger.Debug("連接已移除",
		"conn_id", connID,
		"prev_state", prev,
		"connected_for", time.Since(session.CreatedAt))
}

// cleanup 共用的清理路徑（leave / close / error）
//
// 轉為終態並釋放房間綁定。沒有 join 過的會話只做狀態轉換。
func (r *Relay) cleanup(session *Session) SessionState {
	roomID, playerID, prev := session.terminate()
	if prev == StateJoined {
		r.rooms.Release(roomID, playerID, session.Peer)
	}
	return prev
}

// Broadcast 廣播訊息到房間，排除 senderID
//
// 系統設計考量：
//   - 鎖內取快照，鎖外發送（不阻塞房間的 join/leave）
//   - 不可發送的成員直接跳過，不排隊、不重試
//   - 單一收件者失敗不影響其他人
//
// 回傳成功交付與跳過的數量。
func (r *Relay) Broadcast(roomID, senderID string, payload []byte) (delivered, skipped int) {
	members := r.rooms.MembersOf(roomID)

	for playerID, peer := range members {
		if playerID == senderID {
			continue
		}
		if !peer.IsOpen() {
			skipped++
			continue
		}
		if err := peer.Send(payload); err != nil {
			skipped++
			if !errors.Is(err, ErrPeerClosed) {
				r.logger.Warn("發送失敗，跳過收件者",
					"room_id", roomID,
					"player_id", playerID,
					"error", err)
			}
			continue
		}
		delivered++
	}

	r.metrics.fanOut(delivered, skipped)
	return delivered, skipped
}

// Close 清理所有會話（伺服器關閉時使用）
func (r *Relay) Close() {
	r.mu.RLock()
	connIDs := make([]string, 0, len(r.sessions))
	for connID := range r.sessions {
		connIDs = append(connIDs, connID)
	}
	r.mu.RUnlock()

	for _, connID := range connIDs {
		r.Disconnect(connID)
	}

	r.logger.Info("中繼引擎已停止")
}

// Stats 獲取統計資訊
func (r *Relay) Stats() map[string]any {
	stats := r.rooms.Stats()
	stats["connections"] = r.ConnectionCount()
	return stats
}
