// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package gamefinder provides the core matchmaking engine: the request
// registry, the periodic matching pass, the ready check protocol and the
// resolution hand-off. The matching algorithm and the resolver are strategy
// implementations the engine invokes but does not define.
package gamefinder

import (
	"github.com/AccelByte/extend-core-gamefinder/pkg/envelope"
	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
)

// FindContext is the consistent snapshot handed to the matching strategy for
// one pass: every party selected for this pass plus every session currently
// open for new players. All contents are deep copies; the strategy must not
// retain them past the call.
type FindContext struct {
	Parties      []models.Party
	OpenSessions []models.OpenGameSession
}

// FindGamesResult is what the matching strategy produced for one pass.
// A party referenced by a rejection must not also appear in a game or ticket;
// the engine drops any candidate that violates this.
type FindGamesResult struct {
	Games      []models.Game
	Tickets    []models.OpenSessionTicket
	Rejections []models.Rejection
}

/*
GameFinder is a thing that has logic to take parties and form games. When a
matching pass runs, the engine snapshots the queued parties and open sessions
and asks the finder to form candidates from them.

FindGames is pure from the engine's perspective: it must not mutate the
registry and must return rather than block indefinitely. An error (or panic)
aborts only the current pass; every selected party is returned to the queue.
*/
type GameFinder interface {
	// FindGames forms new games and open-session tickets from the parties in
	// the pass context, and reports the parties it refuses to seat.
	FindGames(scope *envelope.Scope, findCtx FindContext) (FindGamesResult, error)
}

// Resolution is the resolver strategy's answer for one candidate.
type Resolution struct {
	// TargetSessionID is the session players should connect to. Empty means no
	// session was allocated and connection tokens are written as empty
	// placeholders.
	TargetSessionID string

	// WritePlayerData optionally produces a custom per-player resolution
	// payload. Nil means no custom payload.
	WritePlayerData func(userID string) ([]byte, error)
}

// GameFinderResolver allocates or joins a game session for a confirmed
// candidate.
type GameFinderResolver interface {
	// ResolveGame resolves a newly formed game.
	ResolveGame(scope *envelope.Scope, game models.Game) (Resolution, error)

	// ResolveJoinOpenGame resolves parties joining an already-running session.
	ResolveJoinOpenGame(scope *envelope.Scope, ticket models.OpenSessionTicket) (Resolution, error)
}

// SessionTokenProvider creates per-player connection tokens for a target
// session. Implementations may perform I/O; the engine calls them concurrently
// across players.
type SessionTokenProvider interface {
	CreateConnectionToken(scope *envelope.Scope, sessionID, userID string) ([]byte, error)
}

// PlayerNotifier delivers the combined connection payload to a player's
// connection. Serialization and transport are the host's concern.
type PlayerNotifier interface {
	SendConnectionInfo(scope *envelope.Scope, userID string, info models.ConnectionInfo) error
}

// EventHandler receives fire-and-forget notifications about the search
// lifecycle. Each invocation is isolated: a panicking handler is logged and
// cannot affect another handler or the engine state machine.
type EventHandler interface {
	// OnSearchStart fires when a party is registered for matchmaking.
	OnSearchStart(scope *envelope.Scope, party models.Party)

	// OnSearchEnd fires when a request reaches a terminal state, with the
	// reason and the number of passes the party observed.
	OnSearchEnd(scope *envelope.Scope, party models.Party, reason string, passCount int)

	// OnGameStarted fires when a newly formed game has been resolved.
	OnGameStarted(scope *envelope.Scope, game models.Game)
}
