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
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := newAESCBC("a valid secret 123")
	assert.NilError(t, err)

	for _, sample := range []string{
		"stop",
		"",
		"a slightly longer command that spans more than one AES block",
		"line one\nline two\n# a comment\nstop",
	} {
		ct, err := c.encrypt([]byte(sample))
		assert.NilError(t, err)
		pt, err := c.decrypt(ct)
		assert.NilError(t, err)
		assert.Equal(t, string(pt), sample)
	}
}

func TestSecretValidation(t *testing.T) {
	assert.Assert(t, validSecret("plain-ascii_123"))
	assert.Assert(t, !validSecret(""))
	assert.Assert(t, !validSecret("has\x01control"))
	assert.Assert(t, !validSecret("hasénonascii"))
}

func TestResolveSecretGeneratesWhenEmpty(t *testing.T) {
	s, err := resolveSecret("")
	assert.NilError(t, err)
	assert.Assert(t, validSecret(s))
}

func TestResolveSecretRejectsInvalid(t *testing.T) {
	_, err := resolveSecret("bad\x01secret")
	assert.Assert(t, err != nil)
}

func TestLinkFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.link")
	want := Link{Host: "127.0.0.1", Port: "4242", Secret: "s3cr3t"}

	assert.NilError(t, WriteLink(path, want))
	got, err := ReadLink(path)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, want)

	assert.NilError(t, DeleteLink(path))
	_, err = ReadLink(path)
	assert.Assert(t, err != nil)

	// Deleting an already-absent link file is not an error.
	assert.NilError(t, DeleteLink(path))
}

func TestServeDispatchesStopVerb(t *testing.T) {
	srv, err := NewServer("127.0.0.1", "0", "")
	assert.NilError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan string, 1)

	go srv.Serve(ctx, func(verb string, addr net.Addr) {
		received <- verb
	}, nil)

	fields := srv.LinkFields()
	assert.NilError(t, SendStop(fields.Host, fields.Port, fields.Secret))

	select {
	case verb := <-received:
		assert.Equal(t, verb, "stop")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched verb")
	}

	cancel()
}

func TestServeIgnoresUndecryptableDatagram(t *testing.T) {
	srv, err := NewServer("127.0.0.1", "0", "")
	assert.NilError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	go srv.Serve(ctx, func(verb string, addr net.Addr) {
		received <- verb
	}, nil)

	conn, err := net.Dial("udp", srv.Addr().String())
	assert.NilError(t, err)
	_, err = conn.Write([]byte("not block aligned garbage"))
	assert.NilError(t, err)
	conn.Close()

	assert.NilError(t, SendStop(srv.LinkFields().Host, srv.LinkFields().Port, srv.Secret()))

	select {
	case verb := <-received:
		assert.Equal(t, verb, "stop")
	case <-time.After(2 * time.Second):
		t.Fatal("garbage datagram should be dropped, valid one still dispatched")
	}
}
