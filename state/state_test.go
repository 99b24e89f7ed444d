package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/puzzleserver/models"
)

// fakeGame is a test double for GameContext.
type fakeGame struct {
	id      string
	seated  []SeatedPlayer
	playing bool
	cleared bool
}

func (g *fakeGame) GameID() string         { return g.id }
func (g *fakeGame) Seated() []SeatedPlayer { return g.seated }
func (g *fakeGame) SetAllPlaying(p bool)   { g.playing = p }
func (g *fakeGame) ClearReady()            { g.cleared = true }

func twoTeamsReady() []SeatedPlayer {
	return []SeatedPlayer{
		{PlayerID: "p1", Seat: 1, Team: 1, Ready: true},
		{PlayerID: "p2", Seat: 3, Team: 2, Ready: true},
	}
}

func TestCountdownEligible(t *testing.T) {
	policy := DefaultPolicy()

	assert.True(t, CountdownEligible(twoTeamsReady(), policy))

	// 人数不足
	assert.False(t, CountdownEligible(twoTeamsReady()[:1], policy))

	// 有人未准备
	notReady := twoTeamsReady()
	notReady[1].Ready = false
	assert.False(t, CountdownEligible(notReady, policy))

	// 两人同队
	sameTeam := []SeatedPlayer{
		{PlayerID: "p1", Seat: 1, Team: 1, Ready: true},
		{PlayerID: "p2", Seat: 2, Team: 1, Ready: true},
	}
	assert.False(t, CountdownEligible(sameTeam, policy))

	// 放宽阈值后单人可开局
	relaxed := RelaxedPolicy()
	assert.True(t, CountdownEligible([]SeatedPlayer{
		{PlayerID: "p1", Seat: 1, Team: 1, Ready: true},
	}, relaxed))
}

func TestTeamsBelowMinimum(t *testing.T) {
	policy := DefaultPolicy()

	assert.False(t, TeamsBelowMinimum(twoTeamsReady(), policy))
	assert.True(t, TeamsBelowMinimum([]SeatedPlayer{
		{PlayerID: "p1", Seat: 1, Team: 1},
		{PlayerID: "p2", Seat: 2, Team: 1},
	}, policy))
	assert.True(t, TeamsBelowMinimum(nil, policy))
}

func TestPhaseMachineHappyPath(t *testing.T) {
	game := &fakeGame{id: "g1", seated: twoTeamsReady()}
	sm := NewPhaseMachine(game, DefaultPolicy())
	assert.Equal(t, string(models.PhaseWaiting), sm.GetCurrentState().GetID())

	require.NoError(t, sm.ChangeState(NewCountdownState(game)))
	require.NoError(t, sm.ChangeState(NewPlayingState(game)))
	assert.True(t, game.playing)

	require.NoError(t, sm.ChangeState(NewGameOverState(game)))
	assert.False(t, game.playing)
	assert.True(t, game.cleared)
}

func TestPhaseMachineCountdownGate(t *testing.T) {
	game := &fakeGame{id: "g1", seated: []SeatedPlayer{
		{PlayerID: "p1", Seat: 1, Team: 1, Ready: true},
	}}
	sm := NewPhaseMachine(game, DefaultPolicy())

	// 条件不满足时倒计时转换被拒绝
	err := sm.ChangeState(NewCountdownState(game))
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)

	game.seated = twoTeamsReady()
	assert.NoError(t, sm.ChangeState(NewCountdownState(game)))
}

func TestPhaseMachineCountdownCancel(t *testing.T) {
	game := &fakeGame{id: "g1", seated: twoTeamsReady()}
	sm := NewPhaseMachine(game, DefaultPolicy())

	require.NoError(t, sm.ChangeState(NewCountdownState(game)))
	require.NoError(t, sm.ChangeState(NewWaitingState(game)))
	assert.Equal(t, string(models.PhaseWaiting), sm.GetCurrentState().GetID())
}

func TestPhaseMachineStrictTransitions(t *testing.T) {
	game := &fakeGame{id: "g1", seated: twoTeamsReady()}
	sm := NewPhaseMachine(game, DefaultPolicy())

	// 等待不能直接进行中
	err := sm.ChangeState(NewPlayingState(game))
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)

	// 结束态没有出边
	require.NoError(t, sm.ChangeState(NewCountdownState(game)))
	require.NoError(t, sm.ChangeState(NewPlayingState(game)))
	require.NoError(t, sm.ChangeState(NewGameOverState(game)))
	err = sm.ChangeState(NewWaitingState(game))
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
}

func TestSameStateIsNoOp(t *testing.T) {
	game := &fakeGame{id: "g1", seated: twoTeamsReady()}
	sm := NewPhaseMachine(game, DefaultPolicy())

	// 重放同阶段事件不报错也不触发回调
	require.NoError(t, sm.ChangeState(NewWaitingState(game)))
	require.NoError(t, sm.ChangeState(NewCountdownState(game)))
	require.NoError(t, sm.ChangeState(NewCountdownState(game)))
	assert.Equal(t, string(models.PhaseCountdown), sm.GetCurrentState().GetID())
}

func TestStateFor(t *testing.T) {
	game := &fakeGame{}
	assert.Equal(t, string(models.PhaseWaiting), StateFor(models.PhaseWaiting, game).GetID())
	assert.Equal(t, string(models.PhaseCountdown), StateFor(models.PhaseCountdown, game).GetID())
	assert.Equal(t, string(models.PhasePlaying), StateFor(models.PhasePlaying, game).GetID())
	assert.Equal(t, string(models.PhaseGameOver), StateFor(models.PhaseGameOver, game).GetID())
}
