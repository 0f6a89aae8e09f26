// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package defaultfinder provides the default implementation of the GameFinder
// strategy: a longest-waiting-first greedy filler that seats parties into open
// sessions before forming new fixed-size games.
package defaultfinder

import (
	"sort"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/AccelByte/extend-core-gamefinder/pkg/config"
	"github.com/AccelByte/extend-core-gamefinder/pkg/constants"
	"github.com/AccelByte/extend-core-gamefinder/pkg/envelope"
	"github.com/AccelByte/extend-core-gamefinder/pkg/gamefinder"
	"github.com/AccelByte/extend-core-gamefinder/pkg/mathutil"
	"github.com/AccelByte/extend-core-gamefinder/pkg/models"
)

// combinationWindow bounds how many queued parties are considered when
// enumerating exact-capacity seatings, keeping a pass cheap on deep queues.
const combinationWindow = 16

type defaultGameFinder struct {
	cfg *config.Store
}

// New returns the default GameFinder. Team shape comes from the config
// snapshot at each pass.
func New(cfg *config.Store) gamefinder.GameFinder {
	return defaultGameFinder{cfg: cfg}
}

func (f defaultGameFinder) FindGames(rootScope *envelope.Scope, findCtx gamefinder.FindContext) (gamefinder.FindGamesResult, error) {
	scope := rootScope.NewChildScope("defaultGameFinder.FindGames")
	defer scope.Finish()

	cfg := f.cfg.Load()
	teamCount := mathutil.Max(cfg.TeamCount, 1)
	teamSize := mathutil.Max(cfg.TeamPlayerCount, 1)

	result := gamefinder.FindGamesResult{}

	queue := findCtx.Parties
	if cfg.PrioritizeLongerWaiting {
		// Stable sort on a copy so the input slice is left untouched.
		sorted := make([]models.Party, len(queue))
		copy(sorted, queue)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].PassCount > sorted[j].PassCount
		})
		queue = sorted
	}

	eligible := make([]models.Party, 0, len(queue))
	for i := range queue {
		if queue[i].CountPlayer() > teamSize {
			result.Rejections = append(result.Rejections, models.Rejection{
				PartyID: queue[i].PartyID,
				Reason:  constants.RejectionReasonPartyTooLarge,
			})
			continue
		}
		eligible = append(eligible, queue[i])
	}

	seated := make(map[string]struct{})

	// Open sessions are seated before new games are formed.
	for i := range findCtx.OpenSessions {
		ticket, ok := fillOpenSession(findCtx.OpenSessions[i], eligible, seated, teamCount, teamSize)
		if ok {
			result.Tickets = append(result.Tickets, ticket)
		}
	}

	for {
		game, ok := formGame(eligible, seated, teamCount, teamSize)
		if !ok {
			break
		}
		result.Games = append(result.Games, game)
	}

	scope.Log.WithField("games", len(result.Games)).
		WithField("tickets", len(result.Tickets)).
		WithField("rejections", len(result.Rejections)).
		Info("GAMEFINDER: default finder pass complete")

	return result, nil
}

// fillOpenSession seats waiting parties into a session's free seats, balancing
// across teams by most free seats first.
func fillOpenSession(session models.OpenGameSession, parties []models.Party, seated map[string]struct{}, teamCount, teamSize int) (models.OpenSessionTicket, bool) {
	type slot struct {
		teamID string
		free   int
		added  []models.Party
	}

	slots := make([]*slot, 0, teamCount)
	for i := range session.Teams {
		slots = append(slots, &slot{
			teamID: session.Teams[i].TeamID,
			free:   teamSize - session.Teams[i].CountPlayer(),
		})
	}
	for len(slots) < teamCount {
		slots = append(slots, &slot{teamID: ulid.Make().String(), free: teamSize})
	}

	for i := range parties {
		if _, done := seated[parties[i].PartyID]; done {
			continue
		}
		var best *slot
		for _, s := range slots {
			if s.free >= parties[i].CountPlayer() && (best == nil || s.free > best.free) {
				best = s
			}
		}
		if best == nil {
			continue
		}
		best.added = append(best.added, parties[i])
		best.free -= parties[i].CountPlayer()
		seated[parties[i].PartyID] = struct{}{}
	}

	ticket := models.OpenSessionTicket{SessionID: session.SessionID}
	for _, s := range slots {
		if len(s.added) > 0 {
			ticket.Teams = append(ticket.Teams, models.Team{TeamID: s.teamID, Parties: s.added})
		}
	}

	return ticket, len(ticket.Teams) > 0
}

// formGame searches a bounded window of the queue for a set of parties whose
// player count exactly fills a game and that packs into the team shape.
func formGame(parties []models.Party, seated map[string]struct{}, teamCount, teamSize int) (models.Game, bool) {
	capacity := teamCount * teamSize

	pool := make([]models.Party, 0, combinationWindow)
	for i := range parties {
		if _, done := seated[parties[i].PartyID]; done {
			continue
		}
		pool = append(pool, parties[i])
		if len(pool) == combinationWindow {
			break
		}
	}

	totalPlayers := 0
	for i := range pool {
		totalPlayers += pool[i].CountPlayer()
	}
	if totalPlayers < capacity {
		return models.Game{}, false
	}

	maxParties := mathutil.Min(len(pool), capacity)
	for k := 1; k <= maxParties; k++ {
		for _, combo := range combin.Combinations(len(pool), k) {
			selection := make([]models.Party, 0, k)
			players := 0
			for _, idx := range combo {
				selection = append(selection, pool[idx])
				players += pool[idx].CountPlayer()
			}
			if players != capacity {
				continue
			}
			teams, ok := seatTeams(selection, teamCount, teamSize)
			if !ok {
				continue
			}

			for i := range selection {
				seated[selection[i].PartyID] = struct{}{}
			}
			return models.Game{
				GameID:    ulid.Make().String(),
				Teams:     teams,
				Timestamp: time.Now(),
			}, true
		}
	}

	return models.Game{}, false
}

// seatTeams packs parties into teamCount teams of exactly teamSize players,
// largest parties first into the emptiest team.
func seatTeams(parties []models.Party, teamCount, teamSize int) ([]models.Team, bool) {
	// Stable sort on a copy so the input slice is left untouched.
	ordered := make([]models.Party, len(parties))
	copy(ordered, parties)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CountPlayer() > ordered[j].CountPlayer()
	})

	type bin struct {
		free    int
		parties []models.Party
	}
	bins := make([]*bin, teamCount)
	for i := range bins {
		bins[i] = &bin{free: teamSize}
	}

	for i := range ordered {
		var best *bin
		for _, b := range bins {
			if b.free >= ordered[i].CountPlayer() && (best == nil || b.free > best.free) {
				best = b
			}
		}
		if best == nil {
			return nil, false
		}
		best.parties = append(best.parties, ordered[i])
		best.free -= ordered[i].CountPlayer()
	}

	teams := make([]models.Team, 0, teamCount)
	for _, b := range bins {
		if b.free != 0 {
			return nil, false
		}
		teams = append(teams, models.Team{TeamID: ulid.Make().String(), Parties: b.parties})
	}

	return teams, true
}
