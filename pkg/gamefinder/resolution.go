// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package gamefinder

import (
	"context"
	"sync"

	"github.com/AccelByte/extend-core-gamefinder/pkg/constants"
	"github.com/AccelByte/extend-core-gamefinder/pkg/envelope"
	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
)

// resolveCandidate drives one candidate from Found to a terminal outcome:
// optional ready check, resolver strategy, per-player token fan-out, request
// completion. Runs in its own goroutine; the pass loop never waits for it.
func (e *Engine) resolveCandidate(ctx context.Context, candidate models.Candidate, reqs []*MatchRequest) {
	scope := envelope.NewRootScope(ctx, constants.ResolveFunction, "")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameIDTag, candidate.CandidateID())

	if err := e.resolve(scope, candidate, reqs); err != nil {
		scope.Log.WithError(err).WithField("candidateID", candidate.CandidateID()).Error("candidate resolution failed")
	}
}

func (e *Engine) resolve(scope *envelope.Scope, candidate models.Candidate, reqs []*MatchRequest) error {
	cfg := e.cfg.Load()

	if cfg.ReadyCheckEnable {
		if proceed := e.runReadyCheck(scope, candidate, reqs); !proceed {
			return nil
		}
	}

	var resolution Resolution
	var err error
	switch c := candidate.(type) {
	case models.Game:
		resolution, err = e.resolver.ResolveGame(scope, c)
	case models.OpenSessionTicket:
		resolution, err = e.resolver.ResolveJoinOpenGame(scope, c)
		if err == nil && resolution.TargetSessionID == "" {
			resolution.TargetSessionID = c.SessionID
		}
	}
	if err != nil {
		wrapped := &models.ResolutionError{Err: err}
		e.failCandidate(scope, reqs, wrapped)
		return wrapped
	}

	connections, err := e.connectPlayers(scope, candidate, resolution)
	if err != nil {
		wrapped := &models.ResolutionError{Err: err}
		e.failCandidate(scope, reqs, wrapped)
		return wrapped
	}

	gameID := ""
	if game, isGame := candidate.(models.Game); isGame {
		gameID = game.GameID
	}

	for _, req := range reqs {
		result := &models.FindResult{
			GameID:      gameID,
			SessionID:   resolution.TargetSessionID,
			Connections: make(map[string]models.ConnectionInfo, req.Party.CountPlayer()),
		}
		for _, userID := range req.Party.GetPartyUserIDs() {
			result.Connections[userID] = connections[userID]
		}

		removed := e.registry.RemoveAndComplete(req.Party.PartyID, Outcome{Result: result}, StateSucceeded)
		if removed == nil {
			// Cancelled while resolving; its completion already carries the
			// cancellation outcome.
			continue
		}
		e.metrics.AddRequestOutcome(constants.SearchEndReasonSucceeded)
		e.runEventHandlers(scope, func(h EventHandler) {
			h.OnSearchEnd(scope, removed.Party, constants.SearchEndReasonSucceeded, removed.PassCount())
		})
	}
	e.metrics.SetPartiesInQueue(e.registry.Count())

	if game, isGame := candidate.(models.Game); isGame {
		scope.Log.WithField("gameID", game.GameID).Info("GAMEFINDER: game started")
		e.runEventHandlers(scope, func(h EventHandler) { h.OnGameStarted(scope, game) })
	}

	return nil
}

// runReadyCheck blocks until the candidate's ready check is terminal. On
// failure it cancels the unready parties with the check's cause and requeues
// the ready ones, then reports false so resolution aborts.
func (e *Engine) runReadyCheck(scope *envelope.Scope, candidate models.Candidate, reqs []*MatchRequest) bool {
	cfg := e.cfg.Load()
	check := NewReadyCheck(candidate.CandidateID(), candidate.CandidateParties(), cfg.ReadyCheckTimeout())

	e.registerReadyCheck(check)
	defer e.unregisterReadyCheck(check)

	result, err := check.Wait(scope.Ctx)
	if err != nil {
		// Engine shutting down mid-check; requeue everyone.
		e.releaseClaim(reqs)
		return false
	}

	if result.Success {
		e.metrics.AddReadyCheckResult(constants.ReadyCheckResultSuccess)
		return true
	}

	checkResult := constants.ReadyCheckResultDeclined
	if result.Cause == models.ErrReadyCheckTimeout {
		checkResult = constants.ReadyCheckResultTimeout
	}
	e.metrics.AddReadyCheckResult(checkResult)
	scope.Log.WithField("candidateID", candidate.CandidateID()).
		WithField("cause", checkResult).
		WithField("unreadyParties", result.UnreadyParties).
		Info("GAMEFINDER: ready check failed")

	unready := make(map[string]struct{}, len(result.UnreadyParties))
	for _, partyID := range result.UnreadyParties {
		unready[partyID] = struct{}{}
	}

	for _, req := range reqs {
		if _, isUnready := unready[req.Party.PartyID]; !isUnready {
			// Ready parties keep their place in the queue for the next pass.
			e.registry.Requeue(req)
			continue
		}
		removed := e.registry.RemoveAndComplete(req.Party.PartyID, Outcome{Err: result.Cause}, StateCancelled)
		if removed == nil {
			continue
		}
		e.metrics.AddRequestOutcome(constants.SearchEndReasonReadyCheckFailed)
		e.runEventHandlers(scope, func(h EventHandler) {
			h.OnSearchEnd(scope, removed.Party, constants.SearchEndReasonReadyCheckFailed, removed.PassCount())
		})
	}
	e.metrics.SetPartiesInQueue(e.registry.Count())

	return false
}

func (e *Engine) registerReadyCheck(check *ReadyCheck) {
	e.readyChecksMu.Lock()
	defer e.readyChecksMu.Unlock()

	for _, userID := range check.Members() {
		e.readyChecks.Store(userID, check)
	}
}

// unregisterReadyCheck removes only the routing entries that still point at
// this check. A party requeued by a failed check can already be matched into a
// newer check before this cleanup runs; that newer routing must survive.
func (e *Engine) unregisterReadyCheck(check *ReadyCheck) {
	e.readyChecksMu.Lock()
	defer e.readyChecksMu.Unlock()

	for _, userID := range check.Members() {
		if current, ok := e.readyChecks.Load(userID); ok && current == check {
			e.readyChecks.Delete(userID)
		}
	}
}

// connectPlayers creates connection tokens and delivers payloads for every
// player in the candidate concurrently. When no target session was produced
// the token stays an empty placeholder so client payloads remain well-formed.
func (e *Engine) connectPlayers(scope *envelope.Scope, candidate models.Candidate, resolution Resolution) (map[string]models.ConnectionInfo, error) {
	userIDs := make([]string, 0)
	for _, party := range candidate.CandidateParties() {
		userIDs = append(userIDs, party.GetPartyUserIDs()...)
	}

	connections := make(map[string]models.ConnectionInfo, len(userIDs))
	var mu sync.Mutex
	var firstErr error
	var wg sync.WaitGroup

	for _, userID := range userIDs {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()

			info := models.ConnectionInfo{
				SessionID: resolution.TargetSessionID,
				Token:     []byte{},
			}

			if resolution.TargetSessionID != "" && e.tokens != nil {
				token, err := e.tokens.CreateConnectionToken(scope, resolution.TargetSessionID, userID)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				info.Token = token
			}

			if resolution.WritePlayerData != nil {
				data, err := resolution.WritePlayerData(userID)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				info.CustomData = data
			}

			if e.notifier != nil {
				if err := e.notifier.SendConnectionInfo(scope, userID, info); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}

			mu.Lock()
			connections[userID] = info
			mu.Unlock()
		}(userID)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return connections, nil
}

// failCandidate notifies every affected request with a generic resolution
// failure and removes it from the registry.
func (e *Engine) failCandidate(scope *envelope.Scope, reqs []*MatchRequest, resolutionErr error) {
	for _, req := range reqs {
		removed := e.registry.RemoveAndComplete(req.Party.PartyID, Outcome{Err: resolutionErr}, StateCancelled)
		if removed == nil {
			continue
		}
		e.metrics.AddRequestOutcome(constants.SearchEndReasonResolutionFailure)
		e.runEventHandlers(scope, func(h EventHandler) {
			h.OnSearchEnd(scope, removed.Party, constants.SearchEndReasonResolutionFailure, removed.PassCount())
		})
	}
	e.metrics.SetPartiesInQueue(e.registry.Count())
}
