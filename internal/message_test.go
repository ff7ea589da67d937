package internal_test

import (
	"encoding/json"
	"testing"

	"github.com/koopa0/system-design/game-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeMessage 測試訊息解碼
func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantErr      bool
		wantKind     internal.MessageKind
		wantType     string
		wantRoomID   string
		wantPlayerID string
	}{
		{
			name:         "join with routing fields",
			raw:          `{"type":"join","roomId":"r1","playerId":"p1"}`,
			wantKind:     internal.KindJoin,
			wantType:     "join",
			wantRoomID:   "r1",
			wantPlayerID: "p1",
		},
		{
			name:     "join without fields still decodes",
			raw:      `{"type":"join"}`,
			wantKind: internal.KindJoin,
			wantType: "join",
		},
		{
			name:     "leave",
			raw:      `{"type":"leave","reason":"quit"}`,
			wantKind: internal.KindLeave,
			wantType: "leave",
		},
		{
			name:     "state update with opaque payload",
			raw:      `{"type":"state_update","board":[[1,0],[0,1]],"turn":3}`,
			wantKind: internal.KindPassThrough,
			wantType: "state_update",
		},
		{
			name:     "chat",
			raw:      `{"type":"chat","text":"hi"}`,
			wantKind: internal.KindPassThrough,
			wantType: "chat",
		},
		{
			name:     "unknown type",
			raw:      `{"type":"teleport"}`,
			wantKind: internal.KindUnknown,
			wantType: "teleport",
		},
		{
			name:     "missing type",
			raw:      `{"roomId":"r1"}`,
			wantKind: internal.KindUnknown,
		},
		{
			name:     "json null",
			raw:      `null`,
			wantKind: internal.KindUnknown,
		},
		{
			name:     "number type is unknown",
			raw:      `{"type":5}`,
			wantKind: internal.KindUnknown,
		},
		{
			name:     "null type is unknown",
			raw:      `{"type":null,"roomId":"r1"}`,
			wantKind: internal.KindUnknown,
		},
		{
			name:     "upper case key is not type",
			raw:      `{"TYPE":"chat","text":"case"}`,
			wantKind: internal.KindUnknown,
		},
		{
			name:     "mixed case join keys are ignored",
			raw:      `{"Type":"join","RoomID":"r","PLAYERID":"x"}`,
			wantKind: internal.KindUnknown,
		},
		{
			name:         "join with lower case type but mixed case fields",
			raw:          `{"type":"join","RoomId":"r","playerID":"x"}`,
			wantKind:     internal.KindJoin,
			wantType:     "join",
			wantRoomID:   "",
			wantPlayerID: "",
		},
		{
			name:         "join with non-string room id",
			raw:          `{"type":"join","roomId":{"a":1},"playerId":"p1"}`,
			wantKind:     internal.KindJoin,
			wantType:     "join",
			wantPlayerID: "p1",
		},
		{
			name:       "join with numeric player id",
			raw:        `{"type":"join","roomId":"r1","playerId":7}`,
			wantKind:   internal.KindJoin,
			wantType:   "join",
			wantRoomID: "r1",
		},
		{
			name:     "pass-through with numeric player id is opaque",
			raw:      `{"type":"state_update","playerId":1,"roomId":[2],"hp":3}`,
			wantKind: internal.KindPassThrough,
			wantType: "state_update",
		},
		{
			name:     "leave with numeric player id",
			raw:      `{"type":"leave","playerId":1}`,
			wantKind: internal.KindLeave,
			wantType: "leave",
		},
		{name: "not json", raw: `hello`, wantErr: true},
		{name: "truncated object", raw: `{"type":"chat"`, wantErr: true},
		{name: "array", raw: `[1,2,3]`, wantErr: true},
		{name: "string", raw: `"join"`, wantErr: true},
		{name: "empty payload", raw: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := internal.DecodeMessage([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, internal.ErrMalformedMessage)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, msg.Kind)
			assert.Equal(t, tt.wantType, msg.Type)
			assert.Equal(t, tt.wantRoomID, msg.RoomID)
			assert.Equal(t, tt.wantPlayerID, msg.PlayerID)
			assert.Equal(t, tt.raw, string(msg.Raw), "raw payload must be kept verbatim")
		})
	}
}

// TestIsPassThrough 測試固定的轉發類型集合
func TestIsPassThrough(t *testing.T) {
	for _, msgType := range []string{
		"state_update", "action_request", "turn_update", "lobby_state",
		"ready_update", "color_update", "chat", "countdown", "start_game",
	} {
		assert.True(t, internal.IsPassThrough(msgType), msgType)
	}

	for _, msgType := range []string{"join", "leave", "ping", "", "CHAT"} {
		assert.False(t, internal.IsPassThrough(msgType), msgType)
	}
}

// TestEncodeJoinNotice 測試合成的 join 通知
func TestEncodeJoinNotice(t *testing.T) {
	data, err := internal.EncodeJoinNotice("r1", "p1")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"join","playerId":"p1","roomId":"r1"}`, string(data))

	// 特殊字元經過 JSON 轉義
	data, err = internal.EncodeJoinNotice(`room "x"`, "p\n1")
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, `room "x"`, decoded["roomId"])
	assert.Equal(t, "p\n1", decoded["playerId"])
}

// TestMessageKind_String 測試種類名稱
func TestMessageKind_String(t *testing.T) {
	assert.Equal(t, "join", internal.KindJoin.String())
	assert.Equal(t, "leave", internal.KindLeave.String())
	assert.Equal(t, "pass_through", internal.KindPassThrough.String())
	assert.Equal(t, "unknown", internal.KindUnknown.String())
}
