package internal_test

import (
	"log/slog"
	"os"
	"sync"

	"github.com/koopa0/system-design/game-relay/internal"
)

// newTestLogger 測試用日誌（只輸出 Error）
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestRelay 建立獨立的 Registry + Relay
func newTestRelay() (*internal.Registry, *internal.Relay) {
	rooms := internal.NewRegistry()
	return rooms, internal.NewRelay(rooms, internal.NewMetrics(rooms), newTestLogger())
}

// fakePeer 記錄收到的訊息的 Peer
type fakePeer struct {
	mu       sync.Mutex
	open     bool
	sendErr  error
	received []string
}

func newFakePeer() *fakePeer {
	return &fakePeer{open: true}
}

func (p *fakePeer) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *fakePeer) Send(msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return internal.ErrPeerClosed
	}
	if p.sendErr != nil {
		return p.sendErr
	}
	p.received = append(p.received, string(msg))
	return nil
}

func (p *fakePeer) setOpen(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = open
}

func (p *fakePeer) failWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

// Messages 收到的訊息副本
func (p *fakePeer) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.received))
	copy(out, p.received)
	return out
}

// joinMsg 組出 join 訊息
func joinMsg(roomID, playerID string) []byte {
	return []byte(`{"type":"join","roomId":"` + roomID + `","playerId":"` + playerID + `"}`)
}

// joinNotice 伺服器合成的 join 通知
func joinNotice(roomID, playerID string) string {
	return `{"type":"join","playerId":"` + playerID + `","roomId":"` + roomID + `"}`
}
