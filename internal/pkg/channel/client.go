// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package channel

import (
	"fmt"
	"net"

	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/google/uuid"
)

// Send opens an ephemeral UDP socket, encrypts command under secret, sends
// one datagram to host:port, and closes. One-shot: no acknowledgement is
// read back.
func Send(host, port, secret, command string) error {
	c, err := newAESCBC(secret)
	if err != nil {
		return err
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return launchererr.New(launchererr.TransportError, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return launchererr.New(launchererr.TransportError, err)
	}
	defer conn.Close()

	ciphertext, err := c.encrypt([]byte(command))
	if err != nil {
		return launchererr.New(launchererr.CryptoUnavailable, err)
	}
	if _, err := conn.Write(ciphertext); err != nil {
		return launchererr.New(launchererr.TransportError, err)
	}
	return nil
}

// SendStop sends the "stop" verb, the only recognized command. The payload
// leads with an identifying comment line the server skips; it tags the
// datagram for anyone capturing traffic without affecting dispatch.
func SendStop(host, port, secret string) error {
	return Send(host, port, secret, fmt.Sprintf("#id: %s\nstop", uuid.NewString()))
}
