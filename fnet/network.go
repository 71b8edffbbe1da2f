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

// Package fnet holds fget's network plumbing: name resolution with IPv4
// preference and opening of plaintext or TLS streams with deadlines.
package fnet // import "github.com/anhtranbk/fget/fnet"

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"fortio.org/log"
)

const (
	// GET is the http GET method.
	GET = "GET"
	// HEAD is the http HEAD method.
	HEAD = "HEAD"
	// KILOBYTE is a constant for kilobyte (ie 1024).
	KILOBYTE = 1024
)

// ErrResolve is returned when a host name yields no usable address.
var ErrResolve = errors.New("no address found for host")

// Resolve returns the TCP address for host,port suitable for net.Dial.
// When the resolver returns several addresses the first IPv4 one wins;
// v6 connectivity is often broken on dual-stack hosts so v4 is the safer
// empirical pick. IP literals (including bracketed v6) are used as is.
func Resolve(ctx context.Context, host string, port string) (*net.TCPAddr, error) {
	log.Debugf("Resolve() called with host=%s port=%s", host, port)
	dest := &net.TCPAddr{}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	if ip := net.ParseIP(host); ip != nil {
		dest.IP = ip
	} else {
		addrs, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrResolve, host, err)
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("%w %q", ErrResolve, host)
		}
		dest.IP = pickAddr(addrs)
		log.LogVf("Resolved %s to %v (out of %d addresses)", host, dest.IP, len(addrs))
	}
	p, err := net.LookupPort("tcp", port)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve port %q: %w", port, err)
	}
	dest.Port = p
	return dest, nil
}

func pickAddr(addrs []net.IP) net.IP {
	for _, a := range addrs {
		if a.To4() != nil {
			return a
		}
	}
	return addrs[0]
}

// ResolveDestination resolves a "host:port" string (split on the last colon
// so [::1]:port works).
func ResolveDestination(ctx context.Context, dest string) (*net.TCPAddr, error) {
	i := strings.LastIndex(dest, ":")
	if i < 0 {
		return nil, fmt.Errorf("destination %q is not host:port format", dest)
	}
	return Resolve(ctx, dest[:i], dest[i+1:])
}

// OpenStream resolves hostAddr and opens a TCP connection to it with the
// given connect timeout. When tlsCfg is not nil the socket is wrapped in a
// TLS client handshake authenticating serverName. The returned connection
// has an initial read/write deadline armed; callers performing long
// transfers re-arm it before each operation.
func OpenStream(ctx context.Context, hostAddr string, serverName string,
	tlsCfg *tls.Config, timeout time.Duration,
) (net.Conn, error) {
	addr, err := ResolveDestination(ctx, hostAddr)
	if err != nil {
		return nil, err
	}
	d := &net.Dialer{Timeout: timeout}
	var conn net.Conn
	if tlsCfg != nil {
		tlsCfg.ServerName = serverName
		td := &tls.Dialer{NetDialer: d, Config: tlsCfg}
		conn, err = td.DialContext(ctx, addr.Network(), addr.String())
		if err != nil {
			return nil, fmt.Errorf("tls connect to %v: %w", addr, err)
		}
	} else {
		conn, err = d.DialContext(ctx, addr.Network(), addr.String())
		if err != nil {
			return nil, fmt.Errorf("connect to %v: %w", addr, err)
		}
	}
	if err = conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, err
	}
	log.Debugf("Connected to %v (%s)", addr, serverName)
	return conn, nil
}

// EscapeBytes returns printable string. Same as %q format without the
// surrounding/extra "".
func EscapeBytes(buf []byte) string {
	e := fmt.Sprintf("%q", buf)
	return e[1 : len(e)-1]
}

// DebugSummary returns a string with the size and escaped first max/2 and
// last max/2 bytes of a buffer (or the whole escaped buffer if small enough).
func DebugSummary(buf []byte, max int) string {
	l := len(buf)
	if l <= max+3 { // no point in shortening to add ... if we could return those 3
		return EscapeBytes(buf)
	}
	max /= 2
	return fmt.Sprintf("%d: %s...%s", l, EscapeBytes(buf[:max]), EscapeBytes(buf[l-max:]))
}
