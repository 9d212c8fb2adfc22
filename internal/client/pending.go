/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package client holds connected-peer plumbing: the websocket peer, the
// correlation table for request/response exchanges, and the capability
// view the coordinator uses to decide which playback frame a peer gets.
package client

import (
	"sync"

	"github.com/friendsincode/turnstyle/internal/rpc"
)

// PendingTable correlates outbound request ids with their waiting callers.
// Each id resolves at most once; late or duplicate responses are dropped.
type PendingTable struct {
	mu      sync.Mutex
	waiters map[string]chan rpc.Response
}

// NewPendingTable creates an empty correlation table.
func NewPendingTable() *PendingTable {
	return &PendingTable{waiters: make(map[string]chan rpc.Response)}
}

// Register creates a waiter for the given request id. The returned channel
// receives exactly one response, or nothing if the request is cancelled.
func (t *PendingTable) Register(id string) <-chan rpc.Response {
	ch := make(chan rpc.Response, 1)
	t.mu.Lock()
	t.waiters[id] = ch
	t.mu.Unlock()
	return ch
}

// Resolve delivers a response to its waiter. Returns false when no waiter
// is registered, which covers late responses after a timeout or cancel.
func (t *PendingTable) Resolve(id string, resp rpc.Response) bool {
	t.mu.Lock()
	ch, ok := t.waiters[id]
	if ok {
		delete(t.waiters, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	return true
}

// Cancel drops the waiter for an id without delivering anything.
func (t *PendingTable) Cancel(id string) {
	t.mu.Lock()
	delete(t.waiters, id)
	t.mu.Unlock()
}

// CancelAll drops every waiter. Called when the peer disconnects.
func (t *PendingTable) CancelAll() {
	t.mu.Lock()
	t.waiters = make(map[string]chan rpc.Response)
	t.mu.Unlock()
}

// Len reports the number of in-flight requests.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
