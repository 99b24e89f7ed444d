// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"

	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/network"
	"github.com/wfunc/puzzleserver/session"
)

// 广播接口：把客户端消息推给订阅了某个通道的本地连接
type Broadcaster interface {
	BroadcastToChannel(channel string, msgID uint16, data []byte) error
	BroadcastEvent(ev *models.Event, channels []string) error
}

// SessionBroadcaster 基于会话订阅集合的广播器
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{sessionManager: sessionManager}
}

func (b *SessionBroadcaster) BroadcastToChannel(channel string, msgID uint16, data []byte) error {
	for _, s := range b.sessionManager.Sessions() {
		if !s.SubscribedTo(channel) {
			continue
		}
		if err := s.Send(msgID, data); err != nil {
			// 发送失败不致命，连接读循环会负责清理
			continue
		}
	}
	return nil
}

// BroadcastEvent re-emits one fanout event to every local session subscribed
// to any of the affected channels, at most once per session. Chat from a
// muted player is filtered per recipient.
func (b *SessionBroadcaster) BroadcastEvent(ev *models.Event, channels []string) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(channels))
	for _, ch := range channels {
		want[ch] = true
	}

	for _, s := range b.sessionManager.Sessions() {
		subscribed := false
		for ch := range want {
			if s.SubscribedTo(ch) {
				subscribed = true
				break
			}
		}
		if !subscribed {
			continue
		}
		if ev.Kind == models.EventChatMessage && ev.PlayerID != "" &&
			s.Player().IsMuted(ev.PlayerID) {
			continue
		}
		if err := s.Send(network.MsgTypeEvent, data); err != nil {
			continue
		}
	}
	return nil
}
