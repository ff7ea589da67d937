package internal

import (
	"errors"
	"sort"
	"sync"
)

// 系統設計問題：
//   如何追蹤「哪些玩家在哪個房間」，並在廣播時快速找到所有收件者？
//
// 核心挑戰：
//   1. 生命週期：房間在第一個玩家加入時建立，最後一個玩家離開時銷毀
//   2. 並發控制：每個連接一個 goroutine，全部共用同一張房間表
//   3. 資源回收：空房間必須立即刪除（避免房間無限累積）
//
// 設計方案：
//   ✅ 兩層 map：roomID → playerID → Peer
//   ✅ 單一 RWMutex：每個操作都是原子的，不會觀察到空房間
//   ✅ 快照讀取：MembersOf 回傳副本，廣播時不持有鎖

var (
	// ErrPeerClosed 連接已不在可發送狀態
	ErrPeerClosed = errors.New("peer is not open")
	// ErrSendBufferFull 連接的發送緩衝區已滿
	ErrSendBufferFull = errors.New("peer send buffer full")
)

// Peer 一個客戶端連接的抽象
//
// Registry 只需要兩件事：
//   - IsOpen：目前是否可以發送
//   - Send：非阻塞發送，不可發送時回傳錯誤
//
// 連接的建立與關閉由傳輸層負責，Registry 不擁有它的生命週期。
type Peer interface {
	IsOpen() bool
	Send(msg []byte) error
}

// Registry 房間註冊表
//
// 不變式：房間存在於表中 ⇔ 房間至少有一名成員。
type Registry struct {
	rooms map[string]map[string]Peer // roomID -> playerID -> Peer
	mu    sync.RWMutex
}

// NewRegistry 創建空的房間註冊表
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]Peer),
	}
}

// ensureRoom 取得房間成員表，不存在則建立（需要持有寫鎖）
//
// 只在 AddMember 內部使用：建立與插入在同一把鎖內完成，
// 外部永遠看不到沒有成員的房間。
func (r *Registry) ensureRoom(roomID string) map[string]Peer {
	members, exists := r.rooms[roomID]
	if !exists {
		members = make(map[string]Peer)
		r.rooms[roomID] = members
	}
	return members
}

// AddMember 將玩家加入房間
//
// 同一個 playerID 再次加入會直接覆蓋舊的連接（不做重連去重）。
// 回傳值表示這次操作是否建立了新房間。
func (r *Registry) AddMember(roomID, playerID string, peer Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.rooms[roomID]
	r.ensureRoom(roomID)[playerID] = peer
	return !existed
}

// RemoveMember 將玩家移出房間
//
// 房間或玩家不存在時為 no-op。房間變空時整個刪除。
// 回傳值表示是否真的移除了成員。
func (r *Registry) RemoveMember(roomID, playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(roomID, playerID)
}

// Release 只在成員仍然綁定到 peer 時才移除
//
// 同一個 playerID 被新連接覆蓋後，舊連接的清理不能把新連接踢出房間。
func (r *Registry) Release(roomID, playerID string, peer Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.rooms[roomID]
	if !exists {
		return false
	}
	if current, ok := members[playerID]; !ok || current != peer {
		return false
	}
	return r.removeLocked(roomID, playerID)
}

// removeLocked 移除成員並回收空房間（需要持有寫鎖）
func (r *Registry) removeLocked(roomID, playerID string) bool {
	members, exists := r.rooms[roomID]
	if !exists {
		return false
	}
	if _, ok := members[playerID]; !ok {
		return false
	}

	delete(members, playerID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// MembersOf 取得房間成員快照
//
// 回傳副本：呼叫者可以在鎖外遍歷並發送，不會阻塞其他房間操作。
// 房間不存在時回傳空 map。
func (r *Registry) MembersOf(roomID string) map[string]Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	snapshot := make(map[string]Peer, len(members))
	for playerID, peer := range members {
		snapshot[playerID] = peer
	}
	return snapshot
}

// HasRoom 房間是否存在
func (r *Registry) HasRoom(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.rooms[roomID]
	return exists
}

// RoomCount 房間數量
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// MemberCount 所有房間的成員總數
func (r *Registry) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, members := range r.rooms {
		total += len(members)
	}
	return total
}

// Rooms 列出所有房間 ID（已排序）
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms))
	for roomID := range r.rooms {
		ids = append(ids, roomID)
	}
	sort.Strings(ids)
	return ids
}

// Stats 獲取統計資訊
func (r *Registry) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byRoom := make(map[string]int, len(r.rooms))
	totalPlayers := 0
	for roomID, members := range r.rooms {
		byRoom[roomID] = len(members)
		totalPlayers += len(members)
	}

	return map[string]any{
		"total_rooms":   len(r.rooms),
		"total_players": totalPlayers,
		"by_room":       byRoom,
	}
}
