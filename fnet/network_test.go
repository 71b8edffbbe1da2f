// Copyright 2023 Fget Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fnet_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/anhtranbk/fget/fnet"
)

func TestResolveIPLiteral(t *testing.T) {
	addr, err := fnet.Resolve(context.Background(), "127.0.0.1", "80")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if addr.String() != "127.0.0.1:80" {
		t.Errorf("got %v", addr)
	}
}

func TestResolveV6Literal(t *testing.T) {
	addr, err := fnet.Resolve(context.Background(), "[::1]", "443")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if addr.Port != 443 || addr.IP.To4() != nil {
		t.Errorf("got %v", addr)
	}
}

func TestResolveBadHost(t *testing.T) {
	// .invalid is reserved (rfc 2606), guaranteed to not resolve.
	_, err := fnet.Resolve(context.Background(), "nosuchhost.invalid", "80")
	if !errors.Is(err, fnet.ErrResolve) {
		t.Errorf("expected ErrResolve, got %v", err)
	}
}

func TestResolveBadPort(t *testing.T) {
	_, err := fnet.Resolve(context.Background(), "127.0.0.1", "notaport")
	if err == nil {
		t.Errorf("expected error for bad port")
	}
}

func TestResolveDestinationFormat(t *testing.T) {
	_, err := fnet.ResolveDestination(context.Background(), "noport")
	if err == nil {
		t.Errorf("expected error for missing port")
	}
	addr, err := fnet.ResolveDestination(context.Background(), "[::1]:8080")
	if err != nil {
		t.Fatalf("v6 host:port should work: %v", err)
	}
	if addr.Port != 8080 {
		t.Errorf("got %v", addr)
	}
}

func TestOpenStream(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		c, aerr := l.Accept()
		if aerr == nil {
			c.Close()
		}
	}()
	conn, err := fnet.OpenStream(context.Background(), l.Addr().String(), "", nil, 2*time.Second)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	conn.Close()
}

func TestOpenStreamRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	dest := l.Addr().String()
	l.Close() // free the port so the connect gets refused
	_, err = fnet.OpenStream(context.Background(), dest, "", nil, 2*time.Second)
	if err == nil {
		t.Errorf("expected connect error to %s", dest)
	}
}

func TestDebugSummary(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"12345678", "12345678"},
		{"123456789", "123456789"},
		{"1234567890", "1234567890"},
		{"12345678901", "12345678901"},
		{"123456789012", "12: 1234...9012"},
		{"1234567890123", "13: 1234...0123"},
		{"12345678901234", "14: 1234...1234"},
		{"A\r\000\001\x80\nB", `A\r\x00\x01\x80\nB`},                   // escaping
		{"A\r\000Xyyyyyyyyy\001\x80\nB", `17: A\r\x00X...\x01\x80\nB`}, // escaping
	}
	for _, tst := range tests {
		if actual := fnet.DebugSummary([]byte(tst.input), 8); actual != tst.expected {
			t.Errorf("Got '%s', expected '%s' for DebugSummary(%q)", actual, tst.expected, tst.input)
		}
	}
}
