// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"github.com/mitchellh/copystructure"
)

// OpenGameSession is a live session accepting new players through the
// matchmaking pass.
type OpenGameSession struct {
	SessionID         string                 `json:"session_id"`
	SessionAttributes map[string]interface{} `json:"session_attributes,omitempty"`
	Teams             []Team                 `json:"teams"`
	IsOpen            bool                   `json:"is_open"`
	PassesSinceOpen   int                    `json:"passes_since_open"`
}

// CountPlayer counts players currently placed in the session.
func (s *OpenGameSession) CountPlayer() (count int) {
	for i := range s.Teams {
		count += s.Teams[i].CountPlayer()
	}
	return count
}

// Copy returns a deep copy for handing to the matching strategy.
func (s OpenGameSession) Copy() OpenGameSession {
	copied, err := copystructure.Copy(s)
	if err != nil {
		return s
	}
	return copied.(OpenGameSession)
}
