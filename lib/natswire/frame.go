// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package natswire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

const (
	// maxControlLineLength bounds a single protocol line. Matches the
	// NATS server's default max_control_line.
	maxControlLineLength = 4096

	// maxPayloadLength bounds a declared MSG payload. State documents
	// are a few KB; 1 MB matches the NATS server default and keeps a
	// corrupt length field from allocating wildly.
	maxPayloadLength = 1 << 20
)

// Msg is one MSG frame: a message delivered for a subscription.
type Msg struct {
	Subject string
	SID     string
	ReplyTo string
	Data    []byte
}

type frameKind int

const (
	frameMsg frameKind = iota
	framePong
)

type frame struct {
	kind frameKind
	msg  *Msg
}

// readFrame reads protocol lines until something frame-worthy arrives.
// PING is answered inline and the read continues; +OK and INFO are
// skipped; -ERR and malformed input are errors. The reads are
// incremental (line, then declared payload length), so frames split
// across arbitrary TCP segment boundaries parse correctly.
func (c *Conn) readFrame() (frame, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return frame{}, wrapReadError(err)
		}
		switch {
		case strings.HasPrefix(line, "MSG "):
			msg, err := c.readMsg(line)
			if err != nil {
				return frame{}, err
			}
			return frame{kind: frameMsg, msg: msg}, nil
		case line == "PING":
			if err := c.write([]byte("PONG\r\n")); err != nil {
				return frame{}, err
			}
		case line == "PONG":
			return frame{kind: framePong}, nil
		case strings.HasPrefix(line, "-ERR"):
			return frame{}, fmt.Errorf("server error: %s", line)
		case strings.HasPrefix(line, "+OK"), strings.HasPrefix(line, "INFO"):
			// Acknowledgements and server metadata updates carry
			// nothing we use.
		case line == "":
		default:
			return frame{}, fmt.Errorf("unexpected protocol line %q", line)
		}
	}
}

// readMsg parses a MSG header line and reads the declared payload plus
// its trailing CRLF. Header forms:
//
//	MSG <subject> <sid> <#bytes>
//	MSG <subject> <sid> <reply-to> <#bytes>
func (c *Conn) readMsg(header string) (*Msg, error) {
	fields := strings.Fields(header)
	msg := &Msg{}
	switch len(fields) {
	case 4:
		msg.Subject, msg.SID = fields[1], fields[2]
	case 5:
		msg.Subject, msg.SID, msg.ReplyTo = fields[1], fields[2], fields[3]
	default:
		return nil, fmt.Errorf("malformed MSG header %q", header)
	}
	length, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || length < 0 {
		return nil, fmt.Errorf("malformed MSG length in %q", header)
	}
	if length > maxPayloadLength {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d", length, maxPayloadLength)
	}
	msg.Data = make([]byte, length)
	if _, err := io.ReadFull(c.reader, msg.Data); err != nil {
		return nil, fmt.Errorf("read MSG payload: %w", wrapReadError(err))
	}
	var crlf [2]byte
	if _, err := io.ReadFull(c.reader, crlf[:]); err != nil {
		return nil, fmt.Errorf("read MSG terminator: %w", wrapReadError(err))
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return nil, errors.New("MSG payload not CRLF-terminated")
	}
	return msg, nil
}

// readLine returns the next protocol line without its CRLF.
func (c *Conn) readLine() (string, error) {
	line, isPrefix, err := c.reader.ReadLine()
	if err != nil {
		return "", err
	}
	if isPrefix {
		return "", fmt.Errorf("control line exceeds %d bytes", maxControlLineLength)
	}
	return string(line), nil
}

// wrapReadError converts deadline expiry into ErrTimeout so callers
// can tell a silent server from a broken frame.
func wrapReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return err
}
