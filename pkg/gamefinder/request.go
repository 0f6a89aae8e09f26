// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package gamefinder

import (
	"context"
	"sync"

	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
)

// RequestState describes a party's matchmaking lifecycle stage.
type RequestState int32

const (
	StateReady RequestState = iota
	StateSearching
	StateFound
	StateSucceeded
	StateRejected
	StateCancelled
	StateDisconnected
)

func (s RequestState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateSearching:
		return "searching"
	case StateFound:
		return "found"
	case StateSucceeded:
		return "succeeded"
	case StateRejected:
		return "rejected"
	case StateCancelled:
		return "cancelled"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the request lifecycle.
func (s RequestState) Terminal() bool {
	switch s {
	case StateSucceeded, StateRejected, StateCancelled, StateDisconnected:
		return true
	default:
		return false
	}
}

// Outcome is the single-resolution result of a MatchRequest: a successful
// FindResult or a typed failure from the error taxonomy in pkg/models.
type Outcome struct {
	Result *models.FindResult
	Err    error
}

// MatchRequest wraps one party's find request. State, candidate and pass count
// are written only through RequestRegistry methods; the completion signal
// resolves exactly once.
type MatchRequest struct {
	Party models.Party

	mu        sync.Mutex
	state     RequestState
	candidate models.Candidate
	passCount int

	completeOnce sync.Once
	done         chan struct{}
	outcome      Outcome
}

func newMatchRequest(party models.Party) *MatchRequest {
	return &MatchRequest{
		Party: party,
		state: StateReady,
		done:  make(chan struct{}),
	}
}

func (r *MatchRequest) State() RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Candidate returns the candidate set by the current pass, or nil.
func (r *MatchRequest) Candidate() models.Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.candidate
}

// PassCount returns how many passes this party observed without a match.
func (r *MatchRequest) PassCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passCount
}

// complete resolves the completion signal. Resolving a resolved request is a
// no-op; the first caller wins.
func (r *MatchRequest) complete(out Outcome) (won bool) {
	r.completeOnce.Do(func() {
		r.outcome = out
		close(r.done)
		won = true
	})
	return won
}

// Wait suspends until the request is resolved or ctx is cancelled.
func (r *MatchRequest) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Done exposes the completion signal for callers that select on it.
func (r *MatchRequest) Done() <-chan struct{} {
	return r.done
}

// Outcome returns the resolved outcome. Valid only after Done is closed.
func (r *MatchRequest) Outcome() Outcome {
	return r.outcome
}
