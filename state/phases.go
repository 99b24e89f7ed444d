// state/phases.go
package state

import (
	"github.com/wfunc/puzzleserver/models"
)

// Policy carries the readiness thresholds that gate the waiting->countdown
// transition. The relaxed single-player variant used for isolated testing is
// just different values here, injected from config.
type Policy struct {
	MinPlayers int
	MinTeams   int
}

// DefaultPolicy requires two seated players on at least two distinct teams.
func DefaultPolicy() Policy {
	return Policy{MinPlayers: 2, MinTeams: 2}
}

// RelaxedPolicy drops both minimums to one seated player.
func RelaxedPolicy() Policy {
	return Policy{MinPlayers: 1, MinTeams: 1}
}

// SeatedPlayer is the view of one occupied seat the phase machine works with.
type SeatedPlayer struct {
	PlayerID string
	Seat     int
	Team     int
	Ready    bool
	Playing  bool
}

// CountdownEligible reports whether a waiting game may begin its countdown:
// every seated player ready, enough players, enough distinct teams.
func CountdownEligible(players []SeatedPlayer, policy Policy) bool {
	if len(players) < policy.MinPlayers {
		return false
	}
	teams := make(map[int]bool)
	for _, p := range players {
		if !p.Ready {
			return false
		}
		teams[p.Team] = true
	}
	return len(teams) >= policy.MinTeams
}

// TeamsBelowMinimum reports whether a running game has lost team diversity
// (a stand or boot dropped it under the policy floor), which ends the round
// abnormally.
func TeamsBelowMinimum(players []SeatedPlayer, policy Policy) bool {
	teams := make(map[int]bool)
	for _, p := range players {
		teams[p.Team] = true
	}
	return len(teams) < policy.MinTeams
}

// GameContext is what a phase state needs from the owning game. Defined here
// to break the import cycle with the room package.
type GameContext interface {
	GameID() string
	Seated() []SeatedPlayer
	SetAllPlaying(playing bool)
	ClearReady()
}

// 游戏阶段状态基础结构
type PhaseBase struct {
	Phase models.GamePhase
	Game  GameContext
}

func (s *PhaseBase) GetID() string { return string(s.Phase) }
func (s *PhaseBase) OnEnter()      {}
func (s *PhaseBase) OnExit()       {}

// 等待状态
type WaitingState struct {
	PhaseBase
}

func NewWaitingState(game GameContext) *WaitingState {
	return &WaitingState{PhaseBase{Phase: models.PhaseWaiting, Game: game}}
}

// 倒计时状态
type CountdownState struct {
	PhaseBase
}

func NewCountdownState(game GameContext) *CountdownState {
	return &CountdownState{PhaseBase{Phase: models.PhaseCountdown, Game: game}}
}

// 游戏进行状态
type PlayingState struct {
	PhaseBase
}

func NewPlayingState(game GameContext) *PlayingState {
	return &PlayingState{PhaseBase{Phase: models.PhasePlaying, Game: game}}
}

func (s *PlayingState) OnEnter() {
	s.Game.SetAllPlaying(true)
}

// 游戏结束状态
type GameOverState struct {
	PhaseBase
}

func NewGameOverState(game GameContext) *GameOverState {
	return &GameOverState{PhaseBase{Phase: models.PhaseGameOver, Game: game}}
}

func (s *GameOverState) OnEnter() {
	s.Game.SetAllPlaying(false)
	s.Game.ClearReady()
}

// NewPhaseMachine wires the closed phase graph for one game:
// WAITING -> COUNTDOWN -> PLAYING -> GAME_OVER, with countdown cancellation
// back to WAITING. A fresh machine is built for each new round, so GAME_OVER
// has no outgoing edges.
func NewPhaseMachine(game GameContext, policy Policy) *BaseStateMachine {
	waiting := NewWaitingState(game)
	countdown := NewCountdownState(game)
	playing := NewPlayingState(game)
	over := NewGameOverState(game)

	sm := NewBaseStateMachine(waiting)
	sm.AddTransition(waiting, countdown, func() bool {
		return CountdownEligible(game.Seated(), policy)
	})
	sm.AddTransition(countdown, waiting, nil)
	sm.AddTransition(countdown, playing, nil)
	sm.AddTransition(playing, over, nil)
	sm.AddTransition(countdown, over, nil) // abnormal end during countdown
	return sm
}

// StateFor maps a phase name onto a fresh state bound to game, used when a
// mirror replays phase events.
func StateFor(phase models.GamePhase, game GameContext) State {
	switch phase {
	case models.PhaseCountdown:
		return NewCountdownState(game)
	case models.PhasePlaying:
		return NewPlayingState(game)
	case models.PhaseGameOver:
		return NewGameOverState(game)
	default:
		return NewWaitingState(game)
	}
}
