/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rpc defines the JSON-RPC 2.0 frames exchanged with connected
// clients. Requests carry a correlation id and expect a response; broadcast
// notifications carry none.
package rpc

import "encoding/json"

// Version is the JSON-RPC protocol version sent on every frame.
const Version = "2.0"

// Methods the channel coordinator sends to clients.
const (
	MethodPlayTrack            = "playTrack"
	MethodPlayChannelTrack     = "playChannelTrack"
	MethodPauseTrack           = "pauseTrack"
	MethodPauseChannelTrack    = "pauseChannelTrack"
	MethodUpdateChannelDjs     = "updateChannelDjs"
	MethodUpdateChannelUsers   = "updateChannelUsers"
	MethodUpdateChannelMeter   = "updateChannelMeter"
	MethodUpdateChannelHistory = "updateChannelHistory"
	MethodNextChannelTrack     = "nextChannelTrack"
	MethodRefreshDjStack       = "refreshDjStack"
	MethodReorderStack         = "reorderStack"
	MethodRemoveFromStack      = "removeFromStack"
	MethodPushMessage          = "pushMessage"
)

// Notification is a server-to-client frame with no reply expected.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Request is a correlated server-to-client frame; the client must answer
// with a Response carrying the same id.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response is a client frame answering a Request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error is the JSON-RPC error member.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Inbound is the union frame read off a client socket: either a Response to
// a pending Request (ID set, Method empty) or a client-initiated command.
type Inbound struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id,omitempty"`
}

// IsResponse reports whether the frame answers a pending request.
func (in *Inbound) IsResponse() bool {
	return in.ID != "" && in.Method == ""
}

// NewNotification builds a notification frame.
func NewNotification(method string, params any) Notification {
	return Notification{JSONRPC: Version, Method: method, Params: params}
}

// NewRequest builds a correlated request frame.
func NewRequest(method string, params any, id string) Request {
	return Request{JSONRPC: Version, Method: method, Params: params, ID: id}
}
