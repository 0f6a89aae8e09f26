// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package gamefinder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-core-gamefinder/pkg/config"
	"github.com/AccelByte/extend-core-gamefinder/pkg/constants"
	"github.com/AccelByte/extend-core-gamefinder/pkg/envelope"
	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
	"github.com/AccelByte/extend-core-gamefinder/pkg/testsetup"
)

type stubFinder struct {
	mu sync.Mutex
	fn func(findCtx FindContext) (FindGamesResult, error)
}

func (s *stubFinder) FindGames(_ *envelope.Scope, findCtx FindContext) (FindGamesResult, error) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return FindGamesResult{}, nil
	}
	return fn(findCtx)
}

func (s *stubFinder) set(fn func(findCtx FindContext) (FindGamesResult, error)) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
}

type stubResolver struct {
	target string
	err    error
	writer func(userID string) ([]byte, error)
}

func (s *stubResolver) ResolveGame(_ *envelope.Scope, _ models.Game) (Resolution, error) {
	return Resolution{TargetSessionID: s.target, WritePlayerData: s.writer}, s.err
}

func (s *stubResolver) ResolveJoinOpenGame(_ *envelope.Scope, _ models.OpenSessionTicket) (Resolution, error) {
	return Resolution{TargetSessionID: s.target, WritePlayerData: s.writer}, s.err
}

type stubTokens struct{}

func (stubTokens) CreateConnectionToken(_ *envelope.Scope, sessionID, userID string) ([]byte, error) {
	return []byte(fmt.Sprintf("token:%s:%s", sessionID, userID)), nil
}

// oneTeamGame seats every party of the pass into a single team of one game.
func oneTeamGame(findCtx FindContext) (FindGamesResult, error) {
	if len(findCtx.Parties) == 0 {
		return FindGamesResult{}, nil
	}
	return FindGamesResult{
		Games: []models.Game{{
			GameID: "g1",
			Teams:  []models.Team{{Parties: findCtx.Parties}},
		}},
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		PassIntervalMs:      5,
		ReadyCheckTimeoutMs: 150,
		AcceptRequests:      true,
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, finder GameFinder, resolver GameFinderResolver) *Engine {
	t.Helper()
	engine := NewEngine(EngineParams{
		Config:        config.NewStore(cfg),
		Finder:        finder,
		Resolver:      resolver,
		TokenProvider: stubTokens{},
	})
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)
	return engine
}

type submitOutcome struct {
	result *models.FindResult
	err    error
}

func submitAsync(engine *Engine, party models.Party) chan submitOutcome {
	ch := make(chan submitOutcome, 1)
	go func() {
		result, err := engine.Submit(testsetup.NewTestScope(), party)
		ch <- submitOutcome{result, err}
	}()
	return ch
}

func TestEngine_SubmitResolvesWithConnectionToken(t *testing.T) {
	g := testsetup.WithGomega(t)
	engine := newTestEngine(t, testConfig(), &stubFinder{fn: oneTeamGame}, &stubResolver{target: "S1"})

	result, err := engine.Submit(g.TestScope, soloParty("a", "u1"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "g1", result.GameID)
	assert.Equal(t, "S1", result.SessionID)
	assert.Equal(t, []byte("token:S1:u1"), result.Connections["u1"].Token)
	assert.Equal(t, 0, engine.registry.Count(), "request removed after resolution")
}

func TestEngine_SubmitRejectedByStrategy(t *testing.T) {
	g := testsetup.WithGomega(t)
	finder := &stubFinder{fn: func(findCtx FindContext) (FindGamesResult, error) {
		result := FindGamesResult{}
		for _, party := range findCtx.Parties {
			result.Rejections = append(result.Rejections, models.Rejection{PartyID: party.PartyID, Reason: "skillMismatch"})
		}
		return result, nil
	}}
	engine := newTestEngine(t, testConfig(), finder, &stubResolver{})

	_, err := engine.Submit(g.TestScope, soloParty("b", "u1"))
	var rejected *models.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "skillMismatch", rejected.Reason)
	assert.Equal(t, 0, engine.registry.Count())
}

func TestEngine_SubmitWhileDisabled(t *testing.T) {
	g := testsetup.WithGomega(t)
	cfg := testConfig()
	cfg.AcceptRequests = false
	engine := newTestEngine(t, cfg, &stubFinder{}, &stubResolver{})

	_, err := engine.Submit(g.TestScope, soloParty("a", "u1"))
	assert.ErrorIs(t, err, models.ErrMatchingDisabled)
}

func TestEngine_DuplicateRequest(t *testing.T) {
	g := testsetup.WithGomega(t)
	engine := newTestEngine(t, testConfig(), &stubFinder{}, &stubResolver{})

	pending := submitAsync(engine, soloParty("a", "u1"))
	g.Eventually(engine.registry.Count, "3s").Should(gomega.Equal(1))

	_, err := engine.Submit(g.TestScope, soloParty("a", "u1"))
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)

	// Same member under a different party id is a duplicate too.
	_, err = engine.Submit(g.TestScope, soloParty("a2", "u1"))
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)

	engine.Cancel(g.TestScope, "a", true)
	outcome := <-pending
	assert.ErrorIs(t, outcome.err, models.ErrCancelled)
}

func TestEngine_CancelAllDrainsQueue(t *testing.T) {
	g := testsetup.WithGomega(t)
	engine := newTestEngine(t, testConfig(), &stubFinder{}, &stubResolver{})

	pending := []chan submitOutcome{
		submitAsync(engine, soloParty("a", "u1")),
		submitAsync(engine, soloParty("b", "u2")),
		submitAsync(engine, soloParty("c", "u3")),
	}
	g.Eventually(engine.registry.Count, "3s").Should(gomega.Equal(3))

	engine.CancelAll(g.TestScope)

	for _, ch := range pending {
		outcome := <-ch
		assert.ErrorIs(t, outcome.err, models.ErrCancelled)
	}
	assert.Equal(t, 0, engine.registry.Count())

	// Cancelled identities can resubmit immediately.
	resubmit := submitAsync(engine, soloParty("a", "u1"))
	g.Eventually(engine.registry.Count, "3s").Should(gomega.Equal(1))
	engine.Cancel(g.TestScope, "a", true)
	<-resubmit
}

func TestEngine_StrategyErrorRequeuesParties(t *testing.T) {
	g := testsetup.WithGomega(t)
	finder := &stubFinder{fn: func(FindContext) (FindGamesResult, error) {
		return FindGamesResult{}, errors.New("boom")
	}}
	engine := newTestEngine(t, testConfig(), finder, &stubResolver{})

	pending := submitAsync(engine, soloParty("a", "u1"))

	// The party keeps cycling Ready -> Searching -> Ready across failing passes.
	g.Eventually(func() int {
		req, ok := engine.registry.Get("a")
		if !ok {
			return -1
		}
		return req.PassCount()
	}, "3s").Should(gomega.BeNumerically(">=", 2))

	req, ok := engine.registry.Get("a")
	require.True(t, ok)
	assert.Equal(t, StateReady, req.State())

	engine.Cancel(g.TestScope, "a", true)
	<-pending
}

func TestEngine_StrategyPanicAbortsOnlyThePass(t *testing.T) {
	g := testsetup.WithGomega(t)
	finder := &stubFinder{fn: func(FindContext) (FindGamesResult, error) {
		panic("strategy exploded")
	}}
	engine := newTestEngine(t, testConfig(), finder, &stubResolver{target: "S1"})

	pending := submitAsync(engine, soloParty("a", "u1"))
	g.Eventually(func() int {
		req, ok := engine.registry.Get("a")
		if !ok {
			return -1
		}
		return req.PassCount()
	}, "3s").Should(gomega.BeNumerically(">=", 2))

	// Recovered loop keeps running and can still match once the strategy heals.
	finder.set(oneTeamGame)
	outcome := <-pending
	require.NoError(t, outcome.err)
	assert.Equal(t, "S1", outcome.result.SessionID)
}

func TestEngine_RejectedPartyNeverSeated(t *testing.T) {
	// A contradictory strategy answer: the same party rejected and placed in a
	// game. Rejection wins and the tainted game is dropped.
	finder := &stubFinder{fn: func(findCtx FindContext) (FindGamesResult, error) {
		if len(findCtx.Parties) == 0 {
			return FindGamesResult{}, nil
		}
		return FindGamesResult{
			Games: []models.Game{{
				GameID: "g1",
				Teams:  []models.Team{{Parties: findCtx.Parties}},
			}},
			Rejections: []models.Rejection{{PartyID: findCtx.Parties[0].PartyID, Reason: "banned"}},
		}, nil
	}}
	engine := newTestEngine(t, testConfig(), finder, &stubResolver{target: "S1"})

	g := testsetup.WithGomega(t)
	_, err := engine.Submit(g.TestScope, soloParty("a", "u1"))
	var rejected *models.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "banned", rejected.Reason)
}

func TestEngine_ResolverErrorFailsCandidate(t *testing.T) {
	g := testsetup.WithGomega(t)
	engine := newTestEngine(t, testConfig(), &stubFinder{fn: oneTeamGame}, &stubResolver{err: errors.New("allocation failed")})

	_, err := engine.Submit(g.TestScope, soloParty("a", "u1"))
	var resolutionErr *models.ResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, 0, engine.registry.Count())
}

func TestEngine_SubmitCancelledOnContextCancel(t *testing.T) {
	engine := newTestEngine(t, testConfig(), &stubFinder{}, &stubResolver{})

	ctx, cancel := context.WithCancel(context.Background())
	scope := envelope.NewRootScope(ctx, "test", "")
	defer scope.Finish()

	ch := make(chan submitOutcome, 1)
	go func() {
		result, err := engine.Submit(scope, soloParty("a", "u1"))
		ch <- submitOutcome{result, err}
	}()

	g := testsetup.WithGomega(t)
	g.Eventually(engine.registry.Count, "3s").Should(gomega.Equal(1))
	cancel()

	outcome := <-ch
	assert.ErrorIs(t, outcome.err, models.ErrDisconnected)
	assert.Equal(t, 0, engine.registry.Count())
}

func TestEngine_HandleDisconnect(t *testing.T) {
	g := testsetup.WithGomega(t)
	engine := newTestEngine(t, testConfig(), &stubFinder{}, &stubResolver{})

	pending := submitAsync(engine, duoParty("a", "u1", "u2"))
	g.Eventually(engine.registry.Count, "3s").Should(gomega.Equal(1))

	engine.HandleDisconnect(g.TestScope, "u2")

	outcome := <-pending
	assert.ErrorIs(t, outcome.err, models.ErrDisconnected)
}

func TestEngine_ReadyCheckAllReady(t *testing.T) {
	g := testsetup.WithGomega(t)
	cfg := testConfig()
	cfg.ReadyCheckEnable = true
	cfg.ReadyCheckTimeoutMs = 1000

	finder := &stubFinder{fn: func(findCtx FindContext) (FindGamesResult, error) {
		if len(findCtx.Parties) != 2 {
			return FindGamesResult{}, nil
		}
		return oneTeamGame(findCtx)
	}}
	engine := newTestEngine(t, cfg, finder, &stubResolver{target: "S1"})

	pendingC := submitAsync(engine, soloParty("c", "u1"))
	pendingD := submitAsync(engine, soloParty("d", "u2"))

	g.Eventually(func() int { return engine.GetMetrics()["activeReadyChecks"] }, "3s").Should(gomega.Equal(1))

	engine.SetPlayerReady(g.TestScope, "u1", true)
	engine.SetPlayerReady(g.TestScope, "u2", true)

	outcomeC := <-pendingC
	outcomeD := <-pendingD
	require.NoError(t, outcomeC.err)
	require.NoError(t, outcomeD.err)
	assert.Equal(t, "S1", outcomeC.result.SessionID)
	assert.Equal(t, []byte("token:S1:u2"), outcomeD.result.Connections["u2"].Token)
}

func TestEngine_ReadyCheckTimeoutPartitionsParties(t *testing.T) {
	g := testsetup.WithGomega(t)
	cfg := testConfig()
	cfg.ReadyCheckEnable = true
	cfg.ReadyCheckTimeoutMs = 150

	finder := &stubFinder{fn: func(findCtx FindContext) (FindGamesResult, error) {
		if len(findCtx.Parties) != 2 {
			return FindGamesResult{}, nil
		}
		return oneTeamGame(findCtx)
	}}
	engine := newTestEngine(t, cfg, finder, &stubResolver{target: "S1"})

	pendingC := submitAsync(engine, soloParty("c", "u1"))
	pendingD := submitAsync(engine, soloParty("d", "u2"))

	g.Eventually(func() int { return engine.GetMetrics()["activeReadyChecks"] }, "3s").Should(gomega.Equal(1))

	// C confirms, D never answers.
	engine.SetPlayerReady(g.TestScope, "u1", true)

	outcomeD := <-pendingD
	assert.ErrorIs(t, outcomeD.err, models.ErrReadyCheckTimeout)

	// C keeps its place in the queue for the next pass.
	g.Eventually(func() RequestState {
		req, ok := engine.registry.Get("c")
		if !ok {
			return StateCancelled
		}
		return req.State()
	}, "3s").Should(gomega.Or(gomega.Equal(StateReady), gomega.Equal(StateSearching)))

	engine.Cancel(g.TestScope, "c", true)
	outcomeC := <-pendingC
	assert.ErrorIs(t, outcomeC.err, models.ErrCancelled)
}

func TestEngine_ReadyCheckDeclineCancelsDecliner(t *testing.T) {
	g := testsetup.WithGomega(t)
	cfg := testConfig()
	cfg.ReadyCheckEnable = true
	cfg.ReadyCheckTimeoutMs = 2000

	finder := &stubFinder{fn: func(findCtx FindContext) (FindGamesResult, error) {
		if len(findCtx.Parties) != 2 {
			return FindGamesResult{}, nil
		}
		return oneTeamGame(findCtx)
	}}
	engine := newTestEngine(t, cfg, finder, &stubResolver{target: "S1"})

	pendingC := submitAsync(engine, soloParty("c", "u1"))
	pendingD := submitAsync(engine, soloParty("d", "u2"))

	g.Eventually(func() int { return engine.GetMetrics()["activeReadyChecks"] }, "3s").Should(gomega.Equal(1))

	engine.SetPlayerReady(g.TestScope, "u1", true)
	engine.SetPlayerReady(g.TestScope, "u2", false)

	outcomeD := <-pendingD
	assert.ErrorIs(t, outcomeD.err, models.ErrReadyCheckDeclined)

	engine.Cancel(g.TestScope, "c", true)
	outcomeC := <-pendingC
	assert.ErrorIs(t, outcomeC.err, models.ErrCancelled)
}

func TestEngine_OpenSessionJoin(t *testing.T) {
	g := testsetup.WithGomega(t)

	finder := &stubFinder{fn: func(findCtx FindContext) (FindGamesResult, error) {
		if len(findCtx.Parties) == 0 || len(findCtx.OpenSessions) == 0 {
			return FindGamesResult{}, nil
		}
		return FindGamesResult{
			Tickets: []models.OpenSessionTicket{{
				SessionID: findCtx.OpenSessions[0].SessionID,
				Teams:     []models.Team{{TeamID: "t1", Parties: findCtx.Parties}},
			}},
		}, nil
	}}
	engine := newTestEngine(t, testConfig(), finder, &stubResolver{})

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- engine.OpenGameSession(testsetup.NewTestScope(), models.OpenGameSession{SessionID: "sess1"})
	}()
	g.Eventually(func() int { return engine.GetMetrics()["openSessions"] }, "3s").Should(gomega.Equal(1))

	result, err := engine.Submit(g.TestScope, soloParty("a", "u1"))
	require.NoError(t, err)
	assert.Empty(t, result.GameID)
	assert.Equal(t, "sess1", result.SessionID, "ticket target is the default session id")
	assert.Equal(t, []byte("token:sess1:u1"), result.Connections["u1"].Token)

	session, ok := engine.sessions.Get("sess1")
	require.True(t, ok)
	assert.Equal(t, 1, session.CountPlayer(), "ticket teams registered with the session")

	assert.True(t, engine.CloseGameSession(g.TestScope, "sess1"))
	require.NoError(t, <-sessionDone)
	assert.Equal(t, 0, engine.GetMetrics()["openSessions"])
}

func TestEngine_EventHandlersIsolated(t *testing.T) {
	g := testsetup.WithGomega(t)

	var mu sync.Mutex
	events := make([]string, 0)
	record := func(event string) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}

	engine := NewEngine(EngineParams{
		Config:        config.NewStore(testConfig()),
		Finder:        &stubFinder{fn: oneTeamGame},
		Resolver:      &stubResolver{target: "S1"},
		TokenProvider: stubTokens{},
		EventHandlers: []EventHandler{
			panickingHandler{},
			recordingHandler{record: record},
		},
	})
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)

	_, err := engine.Submit(g.TestScope, soloParty("a", "u1"))
	require.NoError(t, err)

	g.Eventually(func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), events...)
	}, "3s").Should(gomega.ContainElements("start:a", "end:a:succeeded", "gameStarted:g1"))
}

type recordingHandler struct {
	record func(string)
}

func (h recordingHandler) OnSearchStart(_ *envelope.Scope, party models.Party) {
	h.record("start:" + party.PartyID)
}

func (h recordingHandler) OnSearchEnd(_ *envelope.Scope, party models.Party, reason string, _ int) {
	h.record("end:" + party.PartyID + ":" + reason)
}

func (h recordingHandler) OnGameStarted(_ *envelope.Scope, game models.Game) {
	h.record("gameStarted:" + game.GameID)
}

type panickingHandler struct{}

func (panickingHandler) OnSearchStart(*envelope.Scope, models.Party)            { panic("hook") }
func (panickingHandler) OnSearchEnd(*envelope.Scope, models.Party, string, int) { panic("hook") }
func (panickingHandler) OnGameStarted(*envelope.Scope, models.Game)             { panic("hook") }

func TestEngine_ReadyCheckCleanupKeepsNewerRouting(t *testing.T) {
	g := testsetup.WithGomega(t)
	engine := NewEngine(EngineParams{
		Config:   config.NewStore(testConfig()),
		Finder:   &stubFinder{},
		Resolver: &stubResolver{},
	})

	// A failed check requeues its ready parties; the next pass can match them
	// into a new check before the old check's cleanup runs. The old cleanup
	// must not remove the new check's routing.
	oldCheck := NewReadyCheck("g1", []models.Party{duoParty("c", "u1")}, time.Minute)
	engine.registerReadyCheck(oldCheck)

	newCheck := NewReadyCheck("g2", []models.Party{duoParty("c", "u1")}, time.Minute)
	engine.registerReadyCheck(newCheck)

	engine.unregisterReadyCheck(oldCheck)

	routed, ok := engine.readyChecks.Load("u1")
	require.True(t, ok, "routing entry survives the stale cleanup")
	assert.Same(t, newCheck, routed)

	engine.SetPlayerReady(g.TestScope, "u1", true)
	assert.True(t, newCheck.Terminal(), "answer reached the active check")
	assert.False(t, oldCheck.Terminal())

	engine.unregisterReadyCheck(newCheck)
	_, ok = engine.readyChecks.Load("u1")
	assert.False(t, ok)
}

type captureMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *captureMetrics) SetPartiesInQueue(int)                      {}
func (m *captureMetrics) SetOpenSessions(int)                        {}
func (m *captureMetrics) AddMatchingPassElapsedTimeMs(time.Duration) {}
func (m *captureMetrics) AddReadyCheckResult(string)                 {}

func (m *captureMetrics) AddRequestOutcome(reason string) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, reason)
	m.mu.Unlock()
}

func (m *captureMetrics) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...)
}

func TestEngine_RejectionOutcomeUsesFixedLabel(t *testing.T) {
	g := testsetup.WithGomega(t)
	capture := &captureMetrics{}
	finder := &stubFinder{fn: func(findCtx FindContext) (FindGamesResult, error) {
		result := FindGamesResult{}
		for _, party := range findCtx.Parties {
			result.Rejections = append(result.Rejections, models.Rejection{PartyID: party.PartyID, Reason: "skillMismatch"})
		}
		return result, nil
	}}
	engine := NewEngine(EngineParams{
		Config:   config.NewStore(testConfig()),
		Finder:   finder,
		Resolver: &stubResolver{},
		Metrics:  capture,
	})
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)

	_, err := engine.Submit(g.TestScope, soloParty("a", "u1"))
	var rejected *models.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "skillMismatch", rejected.Reason, "the exact reason still reaches the caller")

	// The outcome counter sees only the fixed label, never the free-form
	// strategy reason.
	g.Eventually(capture.recorded, "3s").Should(gomega.ContainElement(constants.SearchEndReasonRejected))
	assert.NotContains(t, capture.recorded(), "skillMismatch")
}

func TestEngine_GetMetrics(t *testing.T) {
	g := testsetup.WithGomega(t)
	engine := newTestEngine(t, testConfig(), &stubFinder{}, &stubResolver{})

	pending := submitAsync(engine, soloParty("a", "u1"))
	g.Eventually(func() int { return engine.GetMetrics()["queueDepth"] }, "3s").Should(gomega.Equal(1))
	g.Eventually(func() int { return engine.GetMetrics()["passesRun"] }, "3s").Should(gomega.BeNumerically(">", 0))

	engine.Cancel(g.TestScope, "a", true)
	<-pending

	metrics := engine.GetMetrics()
	assert.Equal(t, 0, metrics["queueDepth"])
	assert.Equal(t, 0, metrics["activeReadyChecks"])

	// Stop is idempotent and leaves the engine drained.
	engine.Stop()
	engine.Stop()
}
