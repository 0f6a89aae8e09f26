// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package models contains the domain objects exchanged between the gamefinder
// engine, the matching strategy and the resolver.
package models

import (
	"github.com/mitchellh/copystructure"
)

// PartyMember is one player inside a party.
type PartyMember struct {
	UserID          string                 `json:"user_id"`
	ExtraAttributes map[string]interface{} `json:"extra_attributes,omitempty"`
}

// Party is a group of one or more players requesting a match together.
// Identity (PartyID and member set) is immutable once submitted;
// PartyAttributes may be extended by the matching strategy.
type Party struct {
	PartyID         string                 `json:"party_id"`
	PartyAttributes map[string]interface{} `json:"party_attributes,omitempty"`
	PartyMembers    []PartyMember          `json:"party_members"`

	// PassCount is the number of matching passes this party has gone through
	// without being matched. Set by the engine before the strategy is invoked.
	PassCount int `json:"pass_count"`
}

func (p *Party) GetPartyUserIDs() []string {
	userIDs := make([]string, 0, len(p.PartyMembers))
	for _, m := range p.PartyMembers {
		userIDs = append(userIDs, m.UserID)
	}

	return userIDs
}

// CountPlayer count party members.
func (p *Party) CountPlayer() int {
	return len(p.PartyMembers)
}

// Copy returns a deep copy, so the matching strategy never holds references
// into the live registry.
func (p Party) Copy() Party {
	copied, err := copystructure.Copy(p)
	if err != nil {
		return p
	}
	return copied.(Party)
}
