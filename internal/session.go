package internal

import (
	"sync"
	"time"
)

// SessionState 連接的會話狀態
//
// 有限狀態機：
//
//	unjoined → joined → terminated
//
// terminated 是終態，沒有任何轉換會回到 unjoined。
type SessionState string

const (
	StateUnjoined   SessionState = "unjoined"   // 尚未加入任何房間
	StateJoined     SessionState = "joined"     // 已綁定 (roomID, playerID)
	StateTerminated SessionState = "terminated" // leave / 關閉 / 錯誤之後
)

// Session 每個連接私有的會話記錄
//
// 綁定在 join 時設定一次，之後不會再改變。
type Session struct {
	ConnID    string
	Peer      Peer
	CreatedAt time.Time

	mu       sync.Mutex
	state    SessionState
	roomID   string
	playerID string
}

func newSession(connID string, peer Peer) *Session {
	return &Session{
		ConnID:    connID,
		Peer:      peer,
		CreatedAt: time.Now(),
		state:     StateUnjoined,
	}
}

// State 目前狀態
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Binding 目前綁定；未加入時 ok 為 false
func (s *Session) Binding() (roomID, playerID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoined {
		return "", "", false
	}
	return s.roomID, s.playerID, true
}

// bind unjoined → joined；其他狀態拒絕
func (s *Session) bind(roomID, playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnjoined {
		return false
	}
	s.state = StateJoined
	s.roomID = roomID
	s.playerID = playerID
	return true
}

// terminate 轉為終態，回傳終止前的狀態與綁定
//
// 只有第一次呼叫會看到 prev=joined，重複呼叫沒有效果。
func (s *Session) terminate() (roomID, playerID string, prev SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev = s.state
	roomID, playerID = s.roomID, s.playerID
	s.state = StateTerminated
	return roomID, playerID, prev
}
