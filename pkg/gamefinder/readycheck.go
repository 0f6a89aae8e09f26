// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package gamefinder

import (
	"context"
	"sync"
	"time"

	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
)

// ReadyCheckResult partitions the candidate's parties once the check is
// terminal. Timeout and decline share the same shape, distinguished only by
// Cause (models.ErrReadyCheckTimeout or models.ErrReadyCheckDeclined).
type ReadyCheckResult struct {
	Success        bool
	Cause          error
	ReadyParties   []string
	UnreadyParties []string
}

// ReadyCheck is the per-candidate consensus sub-protocol: every member of
// every party must confirm within the deadline. The deadline timer and the
// per-player resolution calls race; the first event to make the aggregate
// terminal wins and all later events are no-ops.
type ReadyCheck struct {
	CandidateID string

	mu       sync.Mutex
	answers  map[string]*bool
	partyOf  map[string]string
	parties  []string
	pending  int
	timer    *time.Timer
	terminal bool
	result   ReadyCheckResult

	done chan struct{}
}

// NewReadyCheck creates a check covering every member of the given parties and
// arms the deadline timer.
func NewReadyCheck(candidateID string, parties []models.Party, timeout time.Duration) *ReadyCheck {
	c := &ReadyCheck{
		CandidateID: candidateID,
		answers:     make(map[string]*bool),
		partyOf:     make(map[string]string),
		parties:     make([]string, 0, len(parties)),
		done:        make(chan struct{}),
	}
	for i := range parties {
		c.parties = append(c.parties, parties[i].PartyID)
		for _, userID := range parties[i].GetPartyUserIDs() {
			c.answers[userID] = nil
			c.partyOf[userID] = parties[i].PartyID
		}
	}
	c.pending = len(c.answers)

	c.mu.Lock()
	c.timer = time.AfterFunc(timeout, c.expire)
	c.mu.Unlock()

	return c
}

// Members returns the user ids covered by the check.
func (c *ReadyCheck) Members() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := make([]string, 0, len(c.answers))
	for userID := range c.answers {
		members = append(members, userID)
	}
	return members
}

// ResolvePlayer records one member's answer. Answers from players outside the
// check, repeated answers and answers after the check is terminal are silently
// ignored.
func (c *ReadyCheck) ResolvePlayer(userID string, accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	answer, member := c.answers[userID]
	if !member || answer != nil || c.terminal {
		return
	}
	c.answers[userID] = &accepted
	c.pending--

	if !accepted {
		result := c.partitionLocked()
		result.Cause = models.ErrReadyCheckDeclined
		c.completeLocked(result)
		return
	}
	if c.pending == 0 {
		result := c.partitionLocked()
		result.Success = true
		c.completeLocked(result)
	}
}

// Wait suspends until the check is terminal or ctx is cancelled.
func (c *ReadyCheck) Wait(ctx context.Context) (ReadyCheckResult, error) {
	select {
	case <-c.done:
		return c.Result(), nil
	case <-ctx.Done():
		return ReadyCheckResult{}, ctx.Err()
	}
}

// Result returns the terminal result. Valid only after Wait returned or
// Terminal reports true.
func (c *ReadyCheck) Result() ReadyCheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Terminal reports whether the check completed.
func (c *ReadyCheck) Terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal
}

func (c *ReadyCheck) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminal {
		return
	}
	result := c.partitionLocked()
	result.Cause = models.ErrReadyCheckTimeout
	c.completeLocked(result)
}

// partitionLocked splits parties into ready (every member answered true) and
// unready (any decline or non-answer). Caller holds c.mu.
func (c *ReadyCheck) partitionLocked() ReadyCheckResult {
	readyByParty := make(map[string]bool, len(c.parties))
	for _, partyID := range c.parties {
		readyByParty[partyID] = true
	}
	for userID, answer := range c.answers {
		if answer == nil || !*answer {
			readyByParty[c.partyOf[userID]] = false
		}
	}

	result := ReadyCheckResult{
		ReadyParties:   make([]string, 0, len(c.parties)),
		UnreadyParties: make([]string, 0),
	}
	for _, partyID := range c.parties {
		if readyByParty[partyID] {
			result.ReadyParties = append(result.ReadyParties, partyID)
		} else {
			result.UnreadyParties = append(result.UnreadyParties, partyID)
		}
	}

	return result
}

// completeLocked is the complete-once guard; the first terminal event wins.
// Caller holds c.mu.
func (c *ReadyCheck) completeLocked(result ReadyCheckResult) {
	if c.terminal {
		return
	}
	c.terminal = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.result = result
	close(c.done)
}
