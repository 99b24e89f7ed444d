// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/puzzleserver/invite"
	"github.com/wfunc/puzzleserver/network"
)

// Player 玩家的进程内表示：首次连接/进房时创建，断线超过恢复窗口后丢弃。
// 持久身份独立存在于存储层。
type Player struct {
	ID   string
	Name string

	mutex       sync.RWMutex
	lastActive  time.Time
	controlKeys map[string]string // action -> key binding, per-connection prefs
	muted       map[string]bool

	Invitations *invite.Manager
}

func NewPlayer(id, name string) *Player {
	return &Player{
		ID:          id,
		Name:        name,
		lastActive:  time.Now(),
		controlKeys: make(map[string]string),
		muted:       make(map[string]bool),
		Invitations: invite.NewManager(),
	}
}

// Touch 刷新活跃时间
func (p *Player) Touch() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.lastActive = time.Now()
}

// IdleTime reports how long the player has been inactive.
func (p *Player) IdleTime() time.Duration {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return time.Since(p.lastActive)
}

func (p *Player) SetControlKey(action, key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.controlKeys[action] = key
}

func (p *Player) ControlKey(action string) string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.controlKeys[action]
}

func (p *Player) Mute(playerID string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.muted[playerID] = true
}

func (p *Player) Unmute(playerID string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.muted, playerID)
}

func (p *Player) IsMuted(playerID string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.muted[playerID]
}

// Session binds a live connection to a Player identity and remembers the
// broadcast channels the connection subscribed to, so a reconnect within the
// recovery window resumes without a full rejoin handshake.
type Session struct {
	ID        string
	CreatedAt time.Time

	mutex         sync.RWMutex
	player        *Player
	conn          network.Connection
	roomID        string
	subscriptions map[string]bool
	parked        bool
	parkDeadline  time.Time
}

func NewSession(id string, player *Player, conn network.Connection) *Session {
	return &Session{
		ID:            id,
		player:        player,
		CreatedAt:     time.Now(),
		conn:          conn,
		subscriptions: make(map[string]bool),
	}
}

// Player returns the bound player. The binding can change when a guest
// session identifies itself, so reads go through the session mutex.
func (s *Session) Player() *Player {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.player
}

// BindPlayer swaps the player binding; used when a guest connection joins a
// room under its real identity.
func (s *Session) BindPlayer(p *Player) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.player = p
}

// Send writes a packet to the live connection; parked sessions swallow the
// message (the mirror replay on resume catches the client up).
func (s *Session) Send(msgID uint16, data []byte) error {
	s.mutex.RLock()
	conn := s.conn
	parked := s.parked
	player := s.player
	s.mutex.RUnlock()

	if parked || conn == nil {
		return nil
	}
	player.Touch()
	return conn.Send(msgID, data)
}

func (s *Session) GetID() string { return s.ID }

func (s *Session) SetRoom(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomID = roomID
}

func (s *Session) RoomID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID
}

// Subscribe 记录该连接订阅的广播通道
func (s *Session) Subscribe(channel string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.subscriptions[channel] = true
}

func (s *Session) Unsubscribe(channel string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.subscriptions, channel)
}

func (s *Session) SubscribedTo(channel string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.subscriptions[channel]
}

// Park detaches the connection but keeps subscriptions alive until deadline.
func (s *Session) Park(deadline time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.parked = true
	s.parkDeadline = deadline
	s.conn = nil
}

// Resume re-binds a fresh connection to a parked session. Returns false when
// the recovery window already expired.
func (s *Session) Resume(conn network.Connection) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.parked && time.Now().After(s.parkDeadline) {
		return false
	}
	s.parked = false
	s.parkDeadline = time.Time{}
	s.conn = conn
	return true
}

func (s *Session) IsParked() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.parked
}

func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
