// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package constants

// Root scope names for the engine's own goroutines.
const (
	MatchingPassFunction = "gamefinder.matchingPass"
	ResolveFunction      = "gamefinder.resolveCandidate"
)

const (
	// Search end reason constants, reported to event handlers.
	SearchEndReasonSucceeded         = "succeeded"
	SearchEndReasonRejected          = "rejected"
	SearchEndReasonCancelled         = "cancelled"
	SearchEndReasonDisconnected      = "disconnected"
	SearchEndReasonReadyCheckFailed  = "ready_check_failed"
	SearchEndReasonResolutionFailure = "resolution_failure"

	// Ready check result constants.
	ReadyCheckResultSuccess  = "success"
	ReadyCheckResultDeclined = "declined"
	ReadyCheckResultTimeout  = "timeout"

	// Rejection reason used by the default finder.
	RejectionReasonPartyTooLarge = "party_too_large"
)
