package session

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/puzzleserver/network"
	"github.com/wfunc/puzzleserver/timer"
)

// fakeConn is a test double for network.Connection.
type fakeConn struct {
	mutex sync.Mutex
	sent  []uint16
}

func (c *fakeConn) Send(msgID uint16, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sent = append(c.sent, msgID)
	return nil
}
func (c *fakeConn) Close() error                              { return nil }
func (c *fakeConn) RemoteAddr() net.Addr                      { return &net.TCPAddr{} }
func (c *fakeConn) SetHeartbeat(interval time.Duration)       {}
func (c *fakeConn) ReadPacket() (*network.Packet, error)      { return nil, nil }

func (c *fakeConn) sentCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.sent)
}

func newTestManager(t *testing.T, window time.Duration) *Manager {
	t.Helper()
	tm := timer.NewTimerManager()
	t.Cleanup(tm.Stop)
	return NewManager(window, tm)
}

func TestPlayerGetOrCreate(t *testing.T) {
	m := newTestManager(t, time.Minute)
	p1 := m.Player("p1", "Alice")
	p2 := m.Player("p1", "ignored")
	assert.Same(t, p1, p2)
	assert.Equal(t, "Alice", p2.Name)
}

func TestSessionSendRespectsPark(t *testing.T) {
	m := newTestManager(t, time.Minute)
	conn := &fakeConn{}
	sess := NewSession("s1", m.Player("p1", "Alice"), conn)
	m.Add(sess)

	require.NoError(t, sess.Send(301, []byte("{}")))
	assert.Equal(t, 1, conn.sentCount())

	// 挂起中消息被吞掉，不报错
	m.ParkSession("s1")
	require.NoError(t, sess.Send(301, []byte("{}")))
	assert.Equal(t, 1, conn.sentCount())
}

func TestResumeWithinWindow(t *testing.T) {
	m := newTestManager(t, time.Minute)
	sess := NewSession("s1", m.Player("p1", "Alice"), &fakeConn{})
	sess.Subscribe("room:room1")
	m.Add(sess)

	m.ParkSession("s1")
	assert.True(t, sess.IsParked())

	fresh := &fakeConn{}
	resumed, ok := m.ResumeSession("s1", fresh)
	require.True(t, ok)
	assert.Same(t, sess, resumed)
	assert.False(t, resumed.IsParked())

	// 订阅跨断线保留
	assert.True(t, resumed.SubscribedTo("room:room1"))
	require.NoError(t, resumed.Send(301, []byte("{}")))
	assert.Equal(t, 1, fresh.sentCount())
}

func TestResumeUnknownSession(t *testing.T) {
	m := newTestManager(t, time.Minute)
	_, ok := m.ResumeSession("ghost", &fakeConn{})
	assert.False(t, ok)
}

func TestExpiryRunsDepartureHandler(t *testing.T) {
	m := newTestManager(t, 50*time.Millisecond)

	var mutex sync.Mutex
	var expired []string
	m.OnExpire(func(s *Session) {
		mutex.Lock()
		defer mutex.Unlock()
		expired = append(expired, s.Player().ID)
	})

	sess := NewSession("s1", m.Player("p1", "Alice"), &fakeConn{})
	m.Add(sess)
	m.ParkSession("s1")

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(expired) == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "p1", expired[0])
	_, exists := m.Get("s1")
	assert.False(t, exists)
	assert.Equal(t, 0, m.Count())
}

func TestRemoveDropsPlayerMirror(t *testing.T) {
	m := newTestManager(t, time.Minute)
	p := m.Player("p1", "Alice")
	s1 := NewSession("s1", p, &fakeConn{})
	s2 := NewSession("s2", p, &fakeConn{})
	m.Add(s1)
	m.Add(s2)

	m.Remove("s1")
	// 同一玩家还有会话在线，镜像保留
	assert.Same(t, p, m.Player("p1", ""))

	m.Remove("s2")
	fresh := m.Player("p1", "Alice")
	assert.NotSame(t, p, fresh)
}

func TestPlayerPreferences(t *testing.T) {
	p := NewPlayer("p1", "Ada")

	p.SetControlKey("rotate", "r")
	assert.Equal(t, "r", p.ControlKey("rotate"))
	assert.Equal(t, "", p.ControlKey("drop"))

	p.Mute("p2")
	assert.True(t, p.IsMuted("p2"))
	assert.False(t, p.IsMuted("p3"))
	p.Unmute("p2")
	assert.False(t, p.IsMuted("p2"))
}

func TestPlayerIdleTracking(t *testing.T) {
	p := NewPlayer("p1", "Ada")
	time.Sleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, p.IdleTime(), 20*time.Millisecond)

	p.Touch()
	assert.Less(t, p.IdleTime(), 20*time.Millisecond)
}

func TestBindPlayerConcurrentWithReads(t *testing.T) {
	m := newTestManager(t, time.Minute)
	sess := NewSession("s1", m.Player("guest", ""), &fakeConn{})

	// 订阅分发协程持续读绑定，连接协程换绑身份
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = sess.Player().ID
			_ = sess.Send(1, nil)
		}
	}()
	for i := 0; i < 500; i++ {
		sess.BindPlayer(m.Player(fmt.Sprintf("p%d", i%4), ""))
	}
	<-done

	assert.NotEqual(t, "guest", sess.Player().ID)
}
