/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/turnstyle/internal/rpc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
)

const writeTimeout = 10 * time.Second

// ErrPeerClosed is returned from Send and Request after the socket drops.
var ErrPeerClosed = errors.New("peer closed")

// CommandHandler receives client-initiated frames (joins, votes, stack
// edits). Called from the peer's read pump, one frame at a time.
type CommandHandler func(peer *WSPeer, method string, params json.RawMessage)

// WSPeer is a Peer backed by a websocket connection.
type WSPeer struct {
	conn    *ws.Conn
	info    Info
	pending *PendingTable
	logger  zerolog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	sleeping bool
	closed   bool
}

// NewWSPeer wraps an accepted websocket connection.
func NewWSPeer(conn *ws.Conn, info Info, logger zerolog.Logger) *WSPeer {
	return &WSPeer{
		conn:    conn,
		info:    info,
		pending: NewPendingTable(),
		logger:  logger.With().Str("component", "peer").Str("user", info.UserID).Logger(),
	}
}

func (p *WSPeer) ID() string { return p.info.UserID }

func (p *WSPeer) Info() Info { return p.info }

func (p *WSPeer) Sleeping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sleeping
}

func (p *WSPeer) SetSleeping(sleeping bool) {
	p.mu.Lock()
	p.sleeping = sleeping
	p.mu.Unlock()
}

func (p *WSPeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *WSPeer) write(frame any) error {
	if p.isClosed() {
		return ErrPeerClosed
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.Write(ctx, ws.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Send writes a notification frame.
func (p *WSPeer) Send(n rpc.Notification) error {
	return p.write(n)
}

// Request writes a correlated request and waits for the response or ctx
// expiry. Late responses resolve against nothing and are dropped.
func (p *WSPeer) Request(ctx context.Context, method string, params any) (rpc.Response, error) {
	id := uuid.NewString()
	ch := p.pending.Register(id)

	if err := p.write(rpc.NewRequest(method, params, id)); err != nil {
		p.pending.Cancel(id)
		return rpc.Response{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		p.pending.Cancel(id)
		return rpc.Response{}, ctx.Err()
	}
}

// Close tears the connection down and fails every in-flight request.
func (p *WSPeer) Close(reason string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.pending.CancelAll()
	p.conn.Close(ws.StatusNormalClosure, reason)
}

// ReadPump reads frames until the socket drops, resolving responses and
// handing commands to handle. Blocks; run it on the connection goroutine.
func (p *WSPeer) ReadPump(ctx context.Context, handle CommandHandler) error {
	defer p.Close("read pump exit")

	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			if ws.CloseStatus(err) == ws.StatusNormalClosure || ws.CloseStatus(err) == ws.StatusGoingAway {
				return nil
			}
			return err
		}

		var frame rpc.Inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			p.logger.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}

		if frame.IsResponse() {
			resp := rpc.Response{JSONRPC: frame.JSONRPC, Result: frame.Result, Error: frame.Error, ID: frame.ID}
			if !p.pending.Resolve(frame.ID, resp) {
				p.logger.Debug().Str("id", frame.ID).Msg("dropping late response")
			}
			continue
		}

		if frame.Method == "" {
			p.logger.Debug().Msg("dropping frame with no method")
			continue
		}
		if handle != nil {
			handle(p, frame.Method, frame.Params)
		}
	}
}
