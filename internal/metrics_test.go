package internal_test

import (
	"testing"

	"github.com/koopa0/system-design/game-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metricValue 從 Registry 讀出單一指標值（label 為空時匹配無標籤的指標）
func metricValue(t *testing.T, m *internal.Metrics, name, label, value string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			matched := label == ""
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					matched = true
				}
			}
			if !matched {
				continue
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

// TestMetrics_ConnectionStates 連接在各狀態之間移動時計數保持一致
func TestMetrics_ConnectionStates(t *testing.T) {
	_, relay := newTestRelay()
	m := relay.Metrics()

	state := func(s internal.SessionState) float64 {
		return metricValue(t, m, "relay_connections", "state", string(s))
	}

	c1 := relay.Connect(newFakePeer())
	c2 := relay.Connect(newFakePeer())
	assert.Equal(t, float64(2), state(internal.StateUnjoined))

	relay.HandleMessage(c1, joinMsg("r1", "p1"))
	relay.HandleMessage(c2, joinMsg("r1", "p2"))
	assert.Equal(t, float64(0), state(internal.StateUnjoined))
	assert.Equal(t, float64(2), state(internal.StateJoined))
	assert.Equal(t, float64(1), metricValue(t, m, "relay_rooms", "", ""))
	assert.Equal(t, float64(2), metricValue(t, m, "relay_room_members", "", ""))

	// leave：連接還在，但已是終態
	relay.HandleMessage(c1, []byte(`{"type":"leave"}`))
	assert.Equal(t, float64(1), state(internal.StateJoined))
	assert.Equal(t, float64(1), state(internal.StateTerminated))

	relay.Disconnect(c1)
	relay.Disconnect(c2)
	relay.Disconnect(c2)
	assert.Equal(t, float64(0), state(internal.StateUnjoined))
	assert.Equal(t, float64(0), state(internal.StateJoined))
	assert.Equal(t, float64(0), state(internal.StateTerminated))
	assert.Equal(t, float64(0), metricValue(t, m, "relay_rooms", "", ""))
}

// TestMetrics_Drops 各種被忽略的訊息分別計數
func TestMetrics_Drops(t *testing.T) {
	_, relay := newTestRelay()
	m := relay.Metrics()

	connID := relay.Connect(newFakePeer())
	relay.HandleMessage(connID, []byte(`{"type":"chat"}`))               // not_joined
	relay.HandleMessage(connID, []byte(`{"type":"join","roomId":"r1"}`)) // invalid_join
	relay.HandleMessage(connID, []byte(`{`))                             // malformed
	relay.HandleMessage(connID, []byte(`{"type":"teleport"}`))           // unknown_type
	relay.HandleMessage(connID, joinMsg("r1", "p1"))
	relay.HandleMessage(connID, joinMsg("r2", "p1")) // rejoin

	dropped := func(reason string) float64 {
		return metricValue(t, m, "relay_messages_dropped_total", "reason", reason)
	}
	assert.Equal(t, float64(1), dropped(internal.DropNotJoined))
	assert.Equal(t, float64(1), dropped(internal.DropInvalid))
	assert.Equal(t, float64(1), dropped(internal.DropMalformed))
	assert.Equal(t, float64(1), dropped(internal.DropUnknown))
	assert.Equal(t, float64(1), dropped(internal.DropRejoin))

	assert.Equal(t, float64(3), metricValue(t, m, "relay_messages_received_total", "kind", "join"))
}

// TestMetrics_FanOut 交付與跳過的計數
func TestMetrics_FanOut(t *testing.T) {
	_, relay := newTestRelay()
	m := relay.Metrics()

	closed := newFakePeer()
	for i, peer := range []*fakePeer{newFakePeer(), newFakePeer(), closed} {
		connID := relay.Connect(peer)
		relay.HandleMessage(connID, joinMsg("r1", string(rune('a'+i))))
	}
	closed.setOpen(false)

	delivered, skipped := relay.Broadcast("r1", "a", []byte(`{"type":"chat"}`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, skipped)

	// join 通知：b 加入時交付 1，c 加入時交付 2；之後廣播交付 1
	assert.Equal(t, float64(4), metricValue(t, m, "relay_deliveries_total", "", ""))
	assert.Equal(t, float64(1), metricValue(t, m, "relay_deliveries_skipped_total", "", ""))
}
