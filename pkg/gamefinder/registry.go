// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package gamefinder

import (
	"sync"

	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
)

// RequestRegistry is the single source of truth for request state. It indexes
// active requests by party id and by member user id under one lock, and is the
// only writer of request state transitions.
type RequestRegistry struct {
	mu       sync.RWMutex
	byParty  map[string]*MatchRequest
	byMember map[string]*MatchRequest
	order    []string
}

func NewRequestRegistry() *RequestRegistry {
	return &RequestRegistry{
		byParty:  make(map[string]*MatchRequest),
		byMember: make(map[string]*MatchRequest),
		order:    make([]string, 0),
	}
}

// Add registers a party. It fails with models.ErrDuplicateRequest when any
// member already belongs to an active request; a stale index entry for a
// request that already reached a terminal state is replaced.
func (r *RequestRegistry) Add(party models.Party) (*MatchRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.byParty[party.PartyID]; ok && !prior.State().Terminal() {
		return nil, models.ErrDuplicateRequest
	}
	for _, userID := range party.GetPartyUserIDs() {
		if prior, ok := r.byMember[userID]; ok && !prior.State().Terminal() {
			return nil, models.ErrDuplicateRequest
		}
	}

	req := newMatchRequest(party)
	r.byParty[party.PartyID] = req
	for _, userID := range party.GetPartyUserIDs() {
		r.byMember[userID] = req
	}
	r.order = append(r.order, party.PartyID)

	return req, nil
}

// RemoveAndComplete atomically removes the request and resolves its completion
// signal with the given outcome and terminal state. Removing an unknown party
// is a no-op and returns nil; resolving an already-resolved completion is a
// no-op by construction.
func (r *RequestRegistry) RemoveAndComplete(partyID string, out Outcome, terminal RequestState) *MatchRequest {
	r.mu.Lock()
	req, ok := r.byParty[partyID]
	if ok {
		delete(r.byParty, partyID)
		for _, userID := range req.Party.GetPartyUserIDs() {
			if r.byMember[userID] == req {
				delete(r.byMember, userID)
			}
		}
		for i, id := range r.order {
			if id == partyID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	req.mu.Lock()
	req.state = terminal
	req.mu.Unlock()
	req.complete(out)

	return req
}

// BeginPass moves every Ready request to Searching, clears its candidate and
// returns the selection in FIFO registration order. Requests added after the
// call are not part of the pass.
func (r *RequestRegistry) BeginPass() []*MatchRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	selected := make([]*MatchRequest, 0, len(r.order))
	for _, partyID := range r.order {
		req := r.byParty[partyID]
		req.mu.Lock()
		if req.state == StateReady {
			req.state = StateSearching
			req.candidate = nil
			selected = append(selected, req)
		}
		req.mu.Unlock()
	}

	return selected
}

// MarkFound moves a Searching request to Found with the candidate set. It
// fails when the request is no longer Searching, which also enforces that a
// party appears in at most one active candidate per pass. The candidate must
// reference the request's party.
func (r *RequestRegistry) MarkFound(req *MatchRequest, candidate models.Candidate) bool {
	req.mu.Lock()
	defer req.mu.Unlock()

	if req.state != StateSearching {
		return false
	}
	if !models.CandidateHasParty(candidate, req.Party.PartyID) {
		return false
	}
	req.state = StateFound
	req.candidate = candidate

	return true
}

// Requeue returns a Searching or Found request to Ready and increments its
// pass counter. This is the retry path: an unmatched party is retried
// indefinitely at the next pass.
func (r *RequestRegistry) Requeue(req *MatchRequest) bool {
	req.mu.Lock()
	defer req.mu.Unlock()

	if req.state != StateSearching && req.state != StateFound {
		return false
	}
	req.state = StateReady
	req.candidate = nil
	req.passCount++
	req.Party.PassCount = req.passCount

	return true
}

// Get looks up the active request for a party.
func (r *RequestRegistry) Get(partyID string) (*MatchRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.byParty[partyID]
	return req, ok
}

// LookupByMember looks up the active request containing a member, used by
// disconnect handling.
func (r *RequestRegistry) LookupByMember(userID string) (*MatchRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.byMember[userID]
	return req, ok
}

// All returns every registered request in FIFO registration order.
func (r *RequestRegistry) All() []*MatchRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*MatchRequest, 0, len(r.order))
	for _, partyID := range r.order {
		all = append(all, r.byParty[partyID])
	}
	return all
}

// Count returns the number of registered requests.
func (r *RequestRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byParty)
}
