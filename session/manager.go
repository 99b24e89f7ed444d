// session/manager.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/puzzleserver/network"
	"github.com/wfunc/puzzleserver/timer"
)

// Manager owns all live and parked sessions of this process. A disconnect
// parks the session for the reconnect window; only when the window expires is
// the player treated as fully departed and the expiry callback (room/table
// leave) runs.
type Manager struct {
	sessions map[string]*Session
	players  map[string]*Player // player id -> player
	timers   map[string]int64   // session id -> park timer id
	mutex    sync.RWMutex

	reconnectWindow time.Duration
	timerManager    *timer.TimerManager
	onExpire        func(*Session)
}

func NewManager(reconnectWindow time.Duration, tm *timer.TimerManager) *Manager {
	return &Manager{
		sessions:        make(map[string]*Session),
		players:         make(map[string]*Player),
		timers:          make(map[string]int64),
		reconnectWindow: reconnectWindow,
		timerManager:    tm,
	}
}

// OnExpire registers the full-departure handler.
func (m *Manager) OnExpire(fn func(*Session)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onExpire = fn
}

// Player returns the in-memory player, creating it on first reference.
func (m *Manager) Player(id, name string) *Player {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if p, ok := m.players[id]; ok {
		return p
	}
	p := NewPlayer(id, name)
	m.players[id] = p
	return p
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.removeLocked(sessionID)
}

func (m *Manager) removeLocked(sessionID string) {
	sess, exists := m.sessions[sessionID]
	if !exists {
		return
	}
	delete(m.sessions, sessionID)
	if tid, ok := m.timers[sessionID]; ok {
		m.timerManager.RemoveTimer(tid)
		delete(m.timers, sessionID)
	}
	// 最后一个会话离开时丢弃进程内玩家镜像
	stillConnected := false
	for _, other := range m.sessions {
		if other.Player().ID == sess.Player().ID {
			stillConnected = true
			break
		}
	}
	if !stillConnected {
		delete(m.players, sess.Player().ID)
	}
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// GetByPlayerID returns all sessions bound to the player.
func (m *Manager) GetByPlayerID(playerID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Player().ID == playerID {
			result = append(result, session)
		}
	}
	return result
}

// Count 当前会话数
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Sessions returns a snapshot of all sessions.
func (m *Manager) Sessions() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// ParkSession starts the recovery window for a dropped connection.
func (m *Manager) ParkSession(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	sess, exists := m.sessions[sessionID]
	if !exists {
		return
	}
	sess.Park(time.Now().Add(m.reconnectWindow))
	tid := m.timerManager.AddTimer(m.reconnectWindow, 0, func() {
		m.expire(sessionID)
	})
	m.timers[sessionID] = tid
}

// ResumeSession re-binds a new connection inside the recovery window.
func (m *Manager) ResumeSession(sessionID string, conn network.Connection) (*Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	sess, exists := m.sessions[sessionID]
	if !exists {
		return nil, false
	}
	if !sess.Resume(conn) {
		return nil, false
	}
	if tid, ok := m.timers[sessionID]; ok {
		m.timerManager.RemoveTimer(tid)
		delete(m.timers, sessionID)
	}
	return sess, true
}

func (m *Manager) expire(sessionID string) {
	m.mutex.Lock()
	sess, exists := m.sessions[sessionID]
	if !exists || !sess.IsParked() {
		m.mutex.Unlock()
		return
	}
	onExpire := m.onExpire
	m.removeLocked(sessionID)
	m.mutex.Unlock()

	if onExpire != nil {
		onExpire(sess)
	}
}
