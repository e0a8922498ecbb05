// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

// Package natswire is a minimal NATS client speaking the text protocol
// directly over TCP: publish, subscribe, and request/reply with a
// bounded wait. The producer hook and the bridge daemon exchange a
// handful of small JSON frames; this package keeps that path free of a
// bus client library.
//
// The implemented subset: CONNECT with an empty options object, PUB
// (with optional reply-to), SUB, PING/PONG, and MSG parsing. Server
// PINGs are always answered, including in the middle of a long request
// wait; +OK and INFO lines are skipped; -ERR lines surface as errors.
//
// A Conn may be shared by concurrent writers (frame writes are
// serialized), but at most one goroutine may read: Flush, Request, and
// Next own the read side for their duration.
package natswire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout reports that a request wait or flush expired before the
// server responded. Callers treat it like any other transport failure;
// tests use it to tell a silent server from a broken frame.
var ErrTimeout = errors.New("natswire: timed out waiting for server")

// requestSID is the subscription id used for request inboxes. Request
// connections carry no other subscriptions, so a fixed id is fine.
const requestSID = 1

// Conn is a live connection to the bus.
type Conn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration

	writeMu sync.Mutex
}

// Dial connects to the bus at addr ("host:port"), consumes the
// server's INFO greeting, and sends the CONNECT handshake. timeout
// bounds the whole handshake and becomes the write deadline for
// subsequent frames; zero disables both.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	netConn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial bus %s: %w", addr, err)
	}
	conn := &Conn{
		conn:         netConn,
		reader:       bufio.NewReaderSize(netConn, maxControlLineLength),
		writeTimeout: timeout,
	}
	if timeout > 0 {
		if err := netConn.SetDeadline(time.Now().Add(timeout)); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("set handshake deadline: %w", err)
		}
	}
	greeting, err := conn.readLine()
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("read server greeting: %w", err)
	}
	if !strings.HasPrefix(greeting, "INFO") {
		netConn.Close()
		return nil, fmt.Errorf("unexpected server greeting %q", greeting)
	}
	if _, err := netConn.Write([]byte("CONNECT {}\r\n")); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("send connect: %w", err)
	}
	if err := netConn.SetDeadline(time.Time{}); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}
	return conn, nil
}

// Close closes the underlying connection. Any blocked read or write
// unblocks with an error.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Publish sends one message on subject. Delivery is fire-and-forget;
// a process about to exit calls Flush afterwards for the weak
// at-least-enqueued guarantee.
func (c *Conn) Publish(subject string, payload []byte) error {
	return c.publish(subject, "", payload)
}

// Subscribe registers interest in subject under the given subscription
// id. The server delivers matching messages as MSG frames, consumed by
// Next (or by Request for its private inbox).
func (c *Conn) Subscribe(subject string, sid int) error {
	return c.write([]byte(fmt.Sprintf("SUB %s %d\r\n", subject, sid)))
}

// Flush sends PING and waits for the server's PONG, bounding the wait
// by timeout. A publish followed by Flush means the server has at
// least read our frames before we close.
func (c *Conn) Flush(timeout time.Duration) error {
	if err := c.write([]byte("PING\r\n")); err != nil {
		return err
	}
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}
	for {
		frame, err := c.readFrame()
		if err != nil {
			return err
		}
		// Stray MSG frames are dropped; Flush only confirms the PING.
		if frame.kind == framePong {
			return nil
		}
	}
}

// Request publishes payload on subject with a unique reply inbox and
// waits for the first message addressed to it. Returns ErrTimeout when
// no reply arrives within timeout. Any error means no decision was
// obtained; callers fall back to their neutral default.
func (c *Conn) Request(subject string, payload []byte, timeout time.Duration) ([]byte, error) {
	inbox := fmt.Sprintf("_INBOX.%d.%s", os.Getpid(), uuid.NewString())
	if err := c.Subscribe(inbox, requestSID); err != nil {
		return nil, err
	}
	if err := c.publish(subject, inbox, payload); err != nil {
		return nil, err
	}
	// The PING forces the server to process the SUB and PUB before we
	// settle into the reply wait.
	if err := c.write([]byte("PING\r\n")); err != nil {
		return nil, err
	}
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}
	for {
		frame, err := c.readFrame()
		if err != nil {
			return nil, err
		}
		if frame.kind == frameMsg && frame.msg.Subject == inbox {
			return frame.msg.Data, nil
		}
	}
}

// Next blocks until the next subscribed message arrives. The read side
// has no deadline: a caller stopping its loop closes the connection,
// which unblocks Next with an error.
func (c *Conn) Next() (*Msg, error) {
	for {
		frame, err := c.readFrame()
		if err != nil {
			return nil, err
		}
		if frame.kind == frameMsg {
			return frame.msg, nil
		}
	}
}

func (c *Conn) publish(subject, replyTo string, payload []byte) error {
	var frame bytes.Buffer
	if replyTo == "" {
		fmt.Fprintf(&frame, "PUB %s %d\r\n", subject, len(payload))
	} else {
		fmt.Fprintf(&frame, "PUB %s %s %d\r\n", subject, replyTo, len(payload))
	}
	frame.Write(payload)
	frame.WriteString("\r\n")
	return c.write(frame.Bytes())
}

// write sends one complete frame. Serialized so the read loop's PONG
// answers never interleave inside another writer's frame.
func (c *Conn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
