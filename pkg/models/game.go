// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"time"

	"github.com/AccelByte/extend-core-gamefinder/pkg/utils"
)

// Team is a set of parties that have been matched onto the same side of a game.
type Team struct {
	TeamID  string  `json:"team_id,omitempty"`
	Parties []Party `json:"parties"`
}

func (t *Team) GetTeamUserIDs() []string {
	userIDs := make([]string, 0)
	for i := range t.Parties {
		userIDs = append(userIDs, t.Parties[i].GetPartyUserIDs()...)
	}
	return userIDs
}

// CountPlayer counts players across all parties in the team.
func (t *Team) CountPlayer() (count int) {
	for i := range t.Parties {
		count += t.Parties[i].CountPlayer()
	}
	return count
}

// Candidate is a proposed match outcome produced by the matching strategy for
// one pass, either a newly formed Game or an OpenSessionTicket joining an
// already-running session.
type Candidate interface {
	// CandidateID identifies the candidate for ready checks and logging.
	CandidateID() string

	// CandidateParties returns every party referenced by the candidate.
	CandidateParties() []Party
}

// Game aggregates one or more teams formed in a single matching pass.
type Game struct {
	GameID         string                 `json:"game_id"`
	Teams          []Team                 `json:"teams"`
	GameAttributes map[string]interface{} `json:"game_attributes,omitempty"`
	Timestamp      time.Time              `json:"timestamp,omitempty"`
}

func (g Game) CandidateID() string {
	return g.GameID
}

func (g Game) CandidateParties() []Party {
	return teamParties(g.Teams)
}

// OpenSessionTicket references an already-running session plus the teams to
// add to it.
type OpenSessionTicket struct {
	SessionID string `json:"session_id"`
	Teams     []Team `json:"teams"`
}

func (t OpenSessionTicket) CandidateID() string {
	return t.SessionID
}

func (t OpenSessionTicket) CandidateParties() []Party {
	return teamParties(t.Teams)
}

func teamParties(teams []Team) []Party {
	parties := make([]Party, 0)
	for i := range teams {
		parties = append(parties, teams[i].Parties...)
	}
	return parties
}

// CandidateHasParty reports whether the candidate references the given party.
func CandidateHasParty(c Candidate, partyID string) bool {
	ids := make([]string, 0)
	for _, p := range c.CandidateParties() {
		ids = append(ids, p.PartyID)
	}
	return utils.Contains(ids, partyID)
}

// Rejection is a party the matching strategy refused to seat, with a
// strategy-supplied reason.
type Rejection struct {
	PartyID string `json:"party_id"`
	Reason  string `json:"reason"`
}
