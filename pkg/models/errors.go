// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRequest a party member already has an active find request.
	ErrDuplicateRequest = errors.New("a party member already has an active request")

	// ErrMatchingDisabled the engine is not accepting new requests.
	ErrMatchingDisabled = errors.New("matchmaking is not accepting requests")

	// ErrReadyCheckTimeout the ready check deadline elapsed with unresolved members.
	ErrReadyCheckTimeout = errors.New("ready check timed out")

	// ErrReadyCheckDeclined a member explicitly declined the ready check.
	ErrReadyCheckDeclined = errors.New("ready check declined")

	// ErrCancelled the request was cancelled by the player.
	ErrCancelled = errors.New("request cancelled")

	// ErrDisconnected the request was cancelled because the player disconnected.
	ErrDisconnected = errors.New("request cancelled by disconnect")
)

// RejectedError carries the strategy-supplied rejection reason.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by matching strategy: %s", e.Reason)
}

// ResolutionError wraps the underlying resolver or token-provider failure.
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("game resolution failed: %v", e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
