// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package gamefinder

import (
	"context"
	"fmt"
	"time"

	"github.com/AccelByte/extend-core-gamefinder/pkg/constants"
	"github.com/AccelByte/extend-core-gamefinder/pkg/envelope"
	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
)

// loop runs the periodic matching pass until ctx is cancelled. The timer is
// re-armed after each pass completes, so two passes of the same engine never
// run concurrently; a long pass simply extends the period before the next one.
func (e *Engine) loop(ctx context.Context) {
	defer close(e.loopDone)

	for {
		cfg := e.cfg.Load()
		timer := time.NewTimer(cfg.PassInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			e.runPass(ctx)
		}
	}
}

// runPass executes one matching pass: snapshot Ready requests into Searching,
// invoke the matching strategy, apply rejections, claim found candidates,
// register open-session tickets, requeue the unmatched and hand the accepted
// candidates to resolution asynchronously.
func (e *Engine) runPass(ctx context.Context) {
	scope := envelope.NewRootScope(ctx, constants.MatchingPassFunction, "")
	defer scope.Finish()
	started := time.Now()

	selected := e.registry.BeginPass()
	e.sessions.IncrementPassCounts()

	// Correction path: whatever happens above or below, no request may be
	// left Searching after the pass, panics included.
	defer func() {
		if r := recover(); r != nil {
			scope.Log.Errorf("matching pass panicked: %v", r)
		}
		for _, req := range selected {
			if req.State() == StateSearching {
				e.registry.Requeue(req)
			}
		}
		e.metrics.SetPartiesInQueue(e.registry.Count())
		e.metrics.AddMatchingPassElapsedTimeMs(time.Since(started))
		e.passesRun.Add(1)
	}()

	if len(selected) == 0 {
		return
	}

	findCtx := FindContext{
		Parties:      make([]models.Party, 0, len(selected)),
		OpenSessions: e.sessions.Snapshot(),
	}
	for _, req := range selected {
		party := req.Party.Copy()
		party.PassCount = req.PassCount()
		findCtx.Parties = append(findCtx.Parties, party)
	}

	result, err := e.findGames(scope, findCtx)
	if err != nil {
		scope.Log.WithError(err).Error("matching strategy failed, aborting pass")
		return
	}

	// Rejections are applied before any candidate so a party can never be
	// both rejected and placed in a formed game within the same pass.
	rejected := make(map[string]struct{}, len(result.Rejections))
	for _, rejection := range result.Rejections {
		rejected[rejection.PartyID] = struct{}{}
		e.rejectParty(scope, rejection)
	}

	for _, game := range result.Games {
		if candidateTouchesRejected(game, rejected) {
			scope.Log.WithField("gameID", game.GameID).Warn("dropping game referencing a rejected party")
			continue
		}
		reqs, ok := e.claimCandidate(game)
		if !ok {
			continue
		}
		go e.resolveCandidate(ctx, game, reqs)
	}

	for _, ticket := range result.Tickets {
		if candidateTouchesRejected(ticket, rejected) {
			scope.Log.WithField("sessionID", ticket.SessionID).Warn("dropping ticket referencing a rejected party")
			continue
		}
		reqs, ok := e.claimCandidate(ticket)
		if !ok {
			continue
		}
		if err := e.sessions.RegisterTeams(ticket.SessionID, ticket.Teams); err != nil {
			scope.Log.WithError(err).WithField("sessionID", ticket.SessionID).Warn("dropping ticket, target session unavailable")
			e.releaseClaim(reqs)
			continue
		}
		go e.resolveCandidate(ctx, ticket, reqs)
	}
}

// findGames invokes the external strategy, converting a panic into an error so
// it aborts only the current pass.
func (e *Engine) findGames(scope *envelope.Scope, findCtx FindContext) (result FindGamesResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("matching strategy panicked: %v", r)
		}
	}()

	return e.finder.FindGames(scope, findCtx)
}

func (e *Engine) rejectParty(scope *envelope.Scope, rejection models.Rejection) {
	req, ok := e.registry.Get(rejection.PartyID)
	if !ok || req.State() != StateSearching {
		return
	}

	out := Outcome{Err: &models.RejectedError{Reason: rejection.Reason}}
	removed := e.registry.RemoveAndComplete(rejection.PartyID, out, StateRejected)
	if removed == nil {
		return
	}

	scope.Log.WithField("partyID", rejection.PartyID).WithField("reason", rejection.Reason).Info("GAMEFINDER: party rejected")
	// The strategy reason is free-form; the metric label must stay bounded.
	// Event hooks and the log line carry the exact reason.
	e.metrics.AddRequestOutcome(constants.SearchEndReasonRejected)
	e.runEventHandlers(scope, func(h EventHandler) {
		h.OnSearchEnd(scope, removed.Party, rejection.Reason, removed.PassCount())
	})
}

// claimCandidate marks every referenced party Found. If any party cannot be
// claimed (cancelled mid-pass, or already claimed by another candidate), the
// claim is rolled back and the candidate dropped; rolled-back parties requeue.
func (e *Engine) claimCandidate(candidate models.Candidate) ([]*MatchRequest, bool) {
	parties := candidate.CandidateParties()
	claimed := make([]*MatchRequest, 0, len(parties))
	for _, party := range parties {
		req, ok := e.registry.Get(party.PartyID)
		if !ok || !e.registry.MarkFound(req, candidate) {
			e.releaseClaim(claimed)
			return nil, false
		}
		claimed = append(claimed, req)
	}
	return claimed, true
}

func (e *Engine) releaseClaim(claimed []*MatchRequest) {
	for _, req := range claimed {
		e.registry.Requeue(req)
	}
}

func candidateTouchesRejected(candidate models.Candidate, rejected map[string]struct{}) bool {
	if len(rejected) == 0 {
		return false
	}
	for _, party := range candidate.CandidateParties() {
		if _, ok := rejected[party.PartyID]; ok {
			return true
		}
	}
	return false
}
