/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package client

import (
	"context"

	"github.com/friendsincode/turnstyle/internal/rpc"
)

// Info is the capability view of a connected peer, fixed at connect time
// from the session token except for the sleeping flag.
type Info struct {
	UserID      string
	Country     string
	Mobile      bool
	Bot         bool
	CatalogAuth string
}

// NativePlayback reports whether the peer plays tracks on-device. Mobile
// clients holding catalog credentials receive playTrack with a bare track
// id; everyone else receives playChannelTrack with full stream metadata.
func (i Info) NativePlayback() bool {
	return i.Mobile && i.CatalogAuth != ""
}

// Peer is one connected client as the coordinator sees it.
type Peer interface {
	// ID returns the peer's user id.
	ID() string

	// Info returns the connect-time capability view.
	Info() Info

	// Sleeping reports whether a mobile peer has backgrounded the app.
	// Sleeping DJs are sourced from their stored stack instead of being
	// asked interactively.
	Sleeping() bool
	SetSleeping(bool)

	// Send writes a notification frame. Errors mean the peer is gone.
	Send(n rpc.Notification) error

	// Request writes a correlated request frame and waits for the reply
	// or ctx expiry. A late reply after expiry is dropped.
	Request(ctx context.Context, method string, params any) (rpc.Response, error)

	// Close tears the connection down.
	Close(reason string)
}
