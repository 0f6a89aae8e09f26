// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package gamefinder

import (
	"context"
	"sync"
	"sync/atomic"

	"gopkg.in/typ.v4/sync2"

	"github.com/AccelByte/extend-core-gamefinder/pkg/common"
	"github.com/AccelByte/extend-core-gamefinder/pkg/config"
	"github.com/AccelByte/extend-core-gamefinder/pkg/constants"
	"github.com/AccelByte/extend-core-gamefinder/pkg/envelope"
	"github.com/AccelByte/extend-core-gamefinder/pkg/metrics"
	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
)

// EngineParams collects the collaborators an Engine is wired with. Finder and
// Resolver are required; the rest default to no-ops when nil.
type EngineParams struct {
	Config        *config.Store
	Finder        GameFinder
	Resolver      GameFinderResolver
	TokenProvider SessionTokenProvider
	Notifier      PlayerNotifier
	Metrics       metrics.GameFinderMetrics
	EventHandlers []EventHandler
}

// Engine owns one in-memory matchmaking queue: it accepts find requests,
// runs the periodic matching pass over them and hands confirmed candidates to
// the resolver. All boundary operations are safe to call concurrently with
// the pass loop.
type Engine struct {
	cfg      *config.Store
	finder   GameFinder
	resolver GameFinderResolver
	tokens   SessionTokenProvider
	notifier PlayerNotifier
	metrics  metrics.GameFinderMetrics
	handlers []EventHandler

	registry *RequestRegistry
	sessions *OpenSessionRegistry

	// readyChecks routes SetPlayerReady calls by user id to the player's
	// active check. readyChecksMu serializes registration and cleanup so a
	// stale check's cleanup can never remove a newer check's routing entry.
	readyChecks   sync2.Map[string, *ReadyCheck]
	readyChecksMu sync.Mutex

	passesRun atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	loopCtx   context.Context
	stopLoop  context.CancelFunc
	loopDone  chan struct{}
}

func NewEngine(params EngineParams) *Engine {
	m := params.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		cfg:      params.Config,
		finder:   params.Finder,
		resolver: params.Resolver,
		tokens:   params.TokenProvider,
		notifier: params.Notifier,
		metrics:  m,
		handlers: params.EventHandlers,
		registry: NewRequestRegistry(),
		sessions: NewOpenSessionRegistry(),
		loopDone: make(chan struct{}),
	}
}

// Start launches the pass loop. Subsequent calls are no-ops.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.loopCtx, e.stopLoop = context.WithCancel(ctx)
		go e.loop(e.loopCtx)
	})
}

// Stop halts the pass loop and waits for the in-flight pass to finish.
// In-flight requests are not cancelled; use CancelAll to drain them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.stopLoop != nil {
			e.stopLoop()
			<-e.loopDone
		}
	})
}

// Submit registers a party and suspends until its request reaches a terminal
// state. Cancellation of scope.Ctx maps to disconnect-initiated cancellation.
func (e *Engine) Submit(rootScope *envelope.Scope, party models.Party) (*models.FindResult, error) {
	scope := rootScope.NewChildScope("Engine.Submit")
	defer scope.Finish()
	scope.SetAttributes(envelope.PartyIDTag, party.PartyID)

	cfg := e.cfg.Load()
	if !cfg.AcceptRequests {
		return nil, models.ErrMatchingDisabled
	}

	req, err := e.registry.Add(party)
	if err != nil {
		return nil, err
	}
	scope.Log.WithField("partyID", party.PartyID).Info("GAMEFINDER: party registered")
	e.runEventHandlers(scope, func(h EventHandler) { h.OnSearchStart(scope, party) })

	select {
	case <-req.Done():
	case <-scope.Ctx.Done():
		e.cancel(scope, party.PartyID, false)
		<-req.Done()
	}

	out := req.Outcome()
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Result, nil
}

// Cancel resolves a registered request with a cancellation outcome and removes
// it. Unknown parties are a no-op; requestedByPlayer only affects the reason
// reported to event hooks.
func (e *Engine) Cancel(rootScope *envelope.Scope, partyID string, requestedByPlayer bool) {
	scope := rootScope.NewChildScope("Engine.Cancel")
	defer scope.Finish()

	e.cancel(scope, partyID, requestedByPlayer)
}

func (e *Engine) cancel(scope *envelope.Scope, partyID string, requestedByPlayer bool) {
	cancelErr := models.ErrDisconnected
	reason := constants.SearchEndReasonDisconnected
	terminal := StateDisconnected
	if requestedByPlayer {
		cancelErr = models.ErrCancelled
		reason = constants.SearchEndReasonCancelled
		terminal = StateCancelled
	}

	req := e.registry.RemoveAndComplete(partyID, Outcome{Err: cancelErr}, terminal)
	if req == nil {
		return
	}

	scope.Log.WithField("partyID", partyID).WithField("reason", reason).Info("GAMEFINDER: request cancelled")
	e.metrics.AddRequestOutcome(reason)
	e.metrics.SetPartiesInQueue(e.registry.Count())
	e.runEventHandlers(scope, func(h EventHandler) { h.OnSearchEnd(scope, req.Party, reason, req.PassCount()) })
}

// HandleDisconnect cancels the request containing the given member, if any.
func (e *Engine) HandleDisconnect(rootScope *envelope.Scope, userID string) {
	scope := rootScope.NewChildScope("Engine.HandleDisconnect")
	defer scope.Finish()

	req, ok := e.registry.LookupByMember(userID)
	if !ok {
		return
	}
	e.cancel(scope, req.Party.PartyID, false)
}

// CancelAll cancels every registered request concurrently and waits for all
// cancellations to be applied. Used on deployment deactivation.
func (e *Engine) CancelAll(rootScope *envelope.Scope) {
	scope := rootScope.NewChildScope("Engine.CancelAll")
	defer scope.Finish()

	all := e.registry.All()
	var wg sync.WaitGroup
	for _, req := range all {
		wg.Add(1)
		go func(partyID string) {
			defer wg.Done()
			e.cancel(scope, partyID, true)
		}(req.Party.PartyID)
	}
	wg.Wait()

	scope.Log.WithField("count", len(all)).Info("GAMEFINDER: cancelled all requests")
}

// SetPlayerReady records one player's answer to their active ready check.
// Players without an active check are a no-op.
func (e *Engine) SetPlayerReady(rootScope *envelope.Scope, userID string, accepted bool) {
	scope := rootScope.NewChildScope("Engine.SetPlayerReady")
	defer scope.Finish()

	check, ok := e.readyChecks.Load(userID)
	if !ok {
		return
	}
	scope.Log.WithField("userID", userID).WithField("accepted", accepted).Info("GAMEFINDER: ready check answer")
	check.ResolvePlayer(userID, accepted)
}

// OpenGameSession registers a running session as open for matchmaking and
// suspends until the session is closed or scope.Ctx is cancelled. An empty
// session id gets one minted.
func (e *Engine) OpenGameSession(rootScope *envelope.Scope, session models.OpenGameSession) error {
	scope := rootScope.NewChildScope("Engine.OpenGameSession")
	defer scope.Finish()

	if session.SessionID == "" {
		session.SessionID = common.GenerateUUID()
	}
	scope.SetAttributes(envelope.SessionIDTag, session.SessionID)

	s, err := e.sessions.Open(session)
	if err != nil {
		return err
	}
	e.metrics.SetOpenSessions(e.sessions.Count())
	scope.Log.WithField("sessionID", session.SessionID).Info("GAMEFINDER: game session opened")

	select {
	case <-s.Done():
		return nil
	case <-scope.Ctx.Done():
		e.closeGameSession(scope, session.SessionID)
		return scope.Ctx.Err()
	}
}

// CloseGameSession stops a session from receiving players and resolves the
// OpenGameSession call that registered it.
func (e *Engine) CloseGameSession(rootScope *envelope.Scope, sessionID string) bool {
	scope := rootScope.NewChildScope("Engine.CloseGameSession")
	defer scope.Finish()

	return e.closeGameSession(scope, sessionID)
}

func (e *Engine) closeGameSession(scope *envelope.Scope, sessionID string) bool {
	closed := e.sessions.Close(sessionID)
	if closed {
		scope.Log.WithField("sessionID", sessionID).Info("GAMEFINDER: game session closed")
		e.metrics.SetOpenSessions(e.sessions.Count())
	}
	return closed
}

// GetMetrics returns implementation-defined counters for the host.
func (e *Engine) GetMetrics() map[string]int {
	activeChecks := 0
	seen := make(map[*ReadyCheck]struct{})
	e.readyChecks.Range(func(_ string, check *ReadyCheck) bool {
		if _, ok := seen[check]; !ok {
			seen[check] = struct{}{}
			activeChecks++
		}
		return true
	})

	return map[string]int{
		"queueDepth":        e.registry.Count(),
		"openSessions":      e.sessions.Count(),
		"activeReadyChecks": activeChecks,
		"passesRun":         int(e.passesRun.Load()),
	}
}

// runEventHandlers fans a notification out to every handler, each isolated in
// its own goroutine so a failing hook cannot affect another or the engine.
func (e *Engine) runEventHandlers(scope *envelope.Scope, fn func(EventHandler)) {
	for _, handler := range e.handlers {
		go func(h EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					scope.Log.Errorf("event handler panicked: %v", r)
				}
			}()
			fn(h)
		}(handler)
	}
}
