// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package channel implements the command channel: a UDP server bound inside
// a running instance and a one-shot client used by a peer invocation to
// send it a command, both protected by AES-128-CBC symmetric encryption
// keyed from a shared secret.
package channel

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/pkg/sylog"
)

// Handler processes one decrypted, decoded command verb received from addr.
type Handler func(verb string, addr net.Addr)

// Server is a bound UDP command channel. Zero value is not usable; build
// one with NewServer.
type Server struct {
	conn   *net.UDPConn
	cipher *aesCBC
	secret string
}

// NewServer resolves addr (host:port, port 0 to auto-assign), binds a UDP
// socket, and prepares the cipher for secret (generating one if empty).
// The cipher self-test runs at construction; a failure returns
// CryptoUnavailable and no socket is left bound.
func NewServer(host, port, secret string) (*Server, error) {
	resolved, err := resolveSecret(secret)
	if err != nil {
		return nil, err
	}
	c, err := newAESCBC(resolved)
	if err != nil {
		return nil, err
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, launchererr.New(launchererr.TransportError, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, launchererr.New(launchererr.TransportError, err)
	}

	return &Server{conn: conn, cipher: c, secret: resolved}, nil
}

// Addr returns the bound local address.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Secret returns the resolved secret, for writing to the link file.
func (s *Server) Secret() string {
	return s.secret
}

// LinkFields returns the (host, port, secret) triple WriteLink expects.
func (s *Server) LinkFields() Link {
	a := s.Addr()
	return Link{Host: a.IP.String(), Port: strconv.Itoa(a.Port), Secret: s.secret}
}

// Serve blocks receiving datagrams and dispatching decoded verbs to handler
// until ctx is cancelled or the socket is closed. Closing under a
// cancelled ctx never produces an error notification to errSink; any other
// receive error does.
func (s *Server) Serve(ctx context.Context, handler Handler, errSink func(error)) {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errSink != nil {
				errSink(launchererr.New(launchererr.TransportError, err))
			}
			return
		}

		plaintext, err := s.cipher.decrypt(buf[:n])
		if err != nil {
			sylog.Warningf("channel: dropping undecryptable datagram from %s", addr)
			continue
		}

		for _, line := range strings.Split(string(plaintext), "\n") {
			line = strings.TrimRight(line, "\r")
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if handler != nil {
				handler(line, addr)
			}
		}
	}
}

// Close shuts down the bound socket directly, for a caller whose own setup
// (such as writing the link file) fails before it calls Serve.
func (s *Server) Close() error {
	return s.conn.Close()
}
