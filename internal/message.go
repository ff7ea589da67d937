package internal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage 無法解析的訊息
var ErrMalformedMessage = errors.New("malformed message")

// MessageKind 訊息種類
//
// 入站訊息只在邊界解碼一次，之後一律以 Kind 分派，
// 不在各處臨時讀取欄位。
type MessageKind int

const (
	KindUnknown     MessageKind = iota // 未知類型，忽略
	KindJoin                           // 加入房間
	KindLeave                          // 離開房間
	KindPassThrough                    // 原樣轉發給房間其他成員
)

func (k MessageKind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindPassThrough:
		return "pass_through"
	default:
		return "unknown"
	}
}

// 訊息類型（wire 上的 type 欄位）
const (
	TypeJoin          = "join"
	TypeLeave         = "leave"
	TypeStateUpdate   = "state_update"
	TypeActionRequest = "action_request"
	TypeTurnUpdate    = "turn_update"
	TypeLobbyState    = "lobby_state"
	TypeReadyUpdate   = "ready_update"
	TypeColorUpdate   = "color_update"
	TypeChat          = "chat"
	TypeCountdown     = "countdown"
	TypeStartGame     = "start_game"
)

// passThroughTypes 固定的轉發類型集合
var passThroughTypes = map[string]struct{}{
	TypeStateUpdate:   {},
	TypeActionRequest: {},
	TypeTurnUpdate:    {},
	TypeLobbyState:    {},
	TypeReadyUpdate:   {},
	TypeColorUpdate:   {},
	TypeChat:          {},
	TypeCountdown:     {},
	TypeStartGame:     {},
}

// IsPassThrough 是否為轉發類型
func IsPassThrough(msgType string) bool {
	_, ok := passThroughTypes[msgType]
	return ok
}

// Message 解碼後的入站訊息
//
// Raw 保留原始位元組：leave 與轉發類型都原樣送出，
// 額外欄位不經過重新序列化。
type Message struct {
	Kind     MessageKind
	Type     string
	RoomID   string
	PlayerID string
	Raw      []byte
}

// DecodeMessage 解碼入站訊息
//
// 只有不是 JSON 物件（或 JSON 本身無效）時回傳 ErrMalformedMessage。
// 欄位名稱大小寫必須完全一致；type 不是字串時視為未知類型。
// roomId / playerId 只有 join 需要，其他類型的同名欄位屬於不透明內容，不做檢查。
func DecodeMessage(raw []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	msg := Message{
		Type: stringField(fields, "type"),
		Raw:  raw,
	}

	switch {
	case msg.Type == TypeJoin:
		msg.Kind = KindJoin
		msg.RoomID = stringField(fields, "roomId")
		msg.PlayerID = stringField(fields, "playerId")
	case msg.Type == TypeLeave:
		msg.Kind = KindLeave
	case IsPassThrough(msg.Type):
		msg.Kind = KindPassThrough
	default:
		msg.Kind = KindUnknown
	}

	return msg, nil
}

// stringField 讀取字串欄位；欄位不存在或不是字串時回傳空字串
func stringField(fields map[string]json.RawMessage, key string) string {
	value, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return ""
	}
	return s
}

// joinNotice 加入通知（伺服器合成，不轉發客戶端原始 join）
type joinNotice struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	RoomID   string `json:"roomId"`
}

// EncodeJoinNotice 序列化 {"type":"join","playerId":...,"roomId":...}
func EncodeJoinNotice(roomID, playerID string) ([]byte, error) {
	data, err := json.Marshal(joinNotice{
		Type:     TypeJoin,
		PlayerID: playerID,
		RoomID:   roomID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode join notice: %w", err)
	}
	return data, nil
}
