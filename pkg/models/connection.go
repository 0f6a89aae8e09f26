// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

// ConnectionInfo is the per-player payload produced by resolution.
// Token is an empty placeholder (never nil) when no target session was
// produced, so client-side deserialization stays well-formed.
type ConnectionInfo struct {
	SessionID  string `json:"session_id,omitempty"`
	Token      []byte `json:"token"`
	CustomData []byte `json:"custom_data,omitempty"`
}

// FindResult is the successful outcome delivered to a party awaiting Submit.
type FindResult struct {
	GameID      string                    `json:"game_id,omitempty"`
	SessionID   string                    `json:"session_id,omitempty"`
	Connections map[string]ConnectionInfo `json:"connections"`
}
