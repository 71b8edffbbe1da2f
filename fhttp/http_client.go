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

// Package fhttp is fget's hand-written minimal HTTP/1.1 client. A Client
// is one-shot: it owns one socket, serves exactly one HEAD or GET (following
// redirects on fresh connections), and the connection is closed when the
// response body is closed. No keep-alive reuse, no chunked encoding, no
// compression (identity only).
package fhttp // import "github.com/anhtranbk/fget/fhttp"

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"fortio.org/log"
	"github.com/anhtranbk/fget/fnet"
	"github.com/anhtranbk/fget/furl"
)

const (
	// DefaultUserAgent is the User-Agent header sent unless overridden.
	DefaultUserAgent = "fget/0.1.0"
	// DefaultTimeout is the connect/read/write socket deadline.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxRedirects is the 3xx hop budget when following redirects.
	DefaultMaxRedirects = 10
)

var (
	// ErrClientReused is returned when a request method is called on a
	// client that already served its one request.
	ErrClientReused = errors.New("one-shot http client already used")
	// ErrUnsupportedMethod is returned for anything but GET and HEAD.
	ErrUnsupportedMethod = errors.New("unsupported http method")
	// ErrMalformedStatus is returned when the status line doesn't have at
	// least 3 tokens with a 3 digit code.
	ErrMalformedStatus = errors.New("malformed http status line")
	// ErrRedirectRefused is returned on 3xx when redirects are disabled.
	ErrRedirectRefused = errors.New("server redirected but redirects are disabled")
	// ErrMissingLocation is returned on 3xx without a Location header.
	ErrMissingLocation = errors.New("redirect without location header")
	// ErrTooManyRedirects is returned when the hop budget is exhausted.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// StatusError is returned for 4xx/5xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error status %d %s", e.Code, http.StatusText(e.Code))
}

// ClientOptions are the per-client knobs. Zero values for Timeout and
// UserAgent get the package defaults at client build time; the zero value
// of FollowRedirects means "don't follow" so use NewClientOptions() for
// the standard Follow(10) behavior.
type ClientOptions struct {
	Timeout         time.Duration
	FollowRedirects bool
	MaxRedirects    int
	UserAgent       string
	TLS             TLSOptions
}

// NewClientOptions returns options with the package defaults.
func NewClientOptions() *ClientOptions {
	return &ClientOptions{
		Timeout:         DefaultTimeout,
		FollowRedirects: true,
		MaxRedirects:    DefaultMaxRedirects,
		UserAgent:       DefaultUserAgent,
	}
}

func (o *ClientOptions) normalize() {
	if o.Timeout <= 0 {
		log.Debugf("Client timeout not set, using default %v", DefaultTimeout)
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.FollowRedirects && o.MaxRedirects <= 0 {
		o.MaxRedirects = DefaultMaxRedirects
	}
}

// Client is a one-shot HTTP/1.1 client over a live socket.
type Client struct {
	url      furl.UrlInfo
	hostAddr string // Host: header value
	sock     net.Conn
	opts     ClientOptions
	used     bool
}

// NewClient resolves and connects to the URL's origin (TLS handshake
// included for https), ready to serve one request. Connect, resolve and
// handshake failures surface here.
func NewClient(ctx context.Context, u *furl.UrlInfo, o *ClientOptions) (*Client, error) {
	c := &Client{url: *u, hostAddr: u.HostAddr()}
	if o != nil {
		c.opts = *o
	}
	c.opts.normalize()
	sock, err := dial(ctx, &c.url, &c.opts)
	if err != nil {
		return nil, err
	}
	c.sock = sock
	return c, nil
}

func dial(ctx context.Context, u *furl.UrlInfo, o *ClientOptions) (net.Conn, error) {
	var tlsCfg *tls.Config
	if u.IsTLS() {
		cfg, err := o.TLS.TLSConfig()
		if err != nil {
			return nil, err
		}
		tlsCfg = cfg
	}
	return fnet.OpenStream(ctx, u.HostAddr(), u.Domain, tlsCfg, o.Timeout)
}

// Head issues a HEAD request for path. One-shot: the client is unusable
// afterwards.
func (c *Client) Head(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, fnet.HEAD, path, nil)
}

// Get issues a GET request for path with optional extra headers (e.g.
// Range). One-shot: the client is unusable afterwards.
func (c *Client) Get(ctx context.Context, path string, extra http.Header) (*Response, error) {
	return c.Request(ctx, fnet.GET, path, extra)
}

// Request serializes and sends one request and parses the response status
// line and headers. 3xx responses are chased on fresh connections within
// the hop budget, re-issuing the same method. The returned response body
// borrows the socket until closed.
func (c *Client) Request(ctx context.Context, method string, path string, extra http.Header) (*Response, error) {
	if c.used {
		return nil, ErrClientReused
	}
	c.used = true
	sock := c.sock
	c.sock = nil
	if method != fnet.GET && method != fnet.HEAD {
		sock.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	u := c.url
	hostAddr := c.hostAddr
	budget := 0
	if c.opts.FollowRedirects {
		budget = c.opts.MaxRedirects
	}
	for {
		if err := c.writeRequest(sock, method, path, hostAddr, extra); err != nil {
			sock.Close()
			return nil, err
		}
		code, hdr, br, err := c.readResponseHead(sock)
		if err != nil {
			sock.Close()
			return nil, err
		}
		switch {
		case code >= 200 && code < 300:
			return &Response{
				Code:   code,
				Header: hdr,
				Body:   &bodyReader{br: br, sock: sock, timeout: c.opts.Timeout},
			}, nil
		case code >= 300 && code < 400:
			sock.Close()
			if !c.opts.FollowRedirects {
				return nil, fmt.Errorf("%w (status %d)", ErrRedirectRefused, code)
			}
			if budget <= 0 {
				return nil, fmt.Errorf("%w (> %d)", ErrTooManyRedirects, c.opts.MaxRedirects)
			}
			budget--
			loc := hdr.Get("Location")
			if loc == "" {
				return nil, fmt.Errorf("%w (status %d)", ErrMissingLocation, code)
			}
			nu, err := furl.Parse(loc)
			if err != nil {
				return nil, fmt.Errorf("bad redirect location %q: %w", loc, err)
			}
			log.S(log.Info, "following redirect", log.Str("location", loc),
				log.Attr("status", code), log.Attr("remaining", budget))
			// Fully re-resolve and re-handshake against the new origin.
			sock, err = dial(ctx, nu, &c.opts)
			if err != nil {
				return nil, err
			}
			u = *nu
			hostAddr = nu.HostAddr()
			path = nu.Path
		default:
			sock.Close()
			log.S(log.Warning, "non ok http code", log.Attr("code", code), log.Str("url", u.String()))
			return nil, &StatusError{Code: code}
		}
	}
}

// writeRequest builds and sends the request bytes: request line, Host,
// User-Agent, caller headers, then the fixed defaults. Body is always
// empty.
func (c *Client) writeRequest(sock net.Conn, method string, path string, hostAddr string, extra http.Header) error {
	var buf bytes.Buffer
	buf.WriteString(method + " " + path + " HTTP/1.1\r\n")
	buf.WriteString("Host: " + hostAddr + "\r\n")
	buf.WriteString("User-Agent: " + c.opts.UserAgent + "\r\n")
	if len(extra) > 0 {
		w := bufio.NewWriter(&buf)
		// Writes multiple valued headers properly.
		_ = extra.Write(w)
		w.Flush()
	}
	buf.WriteString("Accept: */*\r\n")
	buf.WriteString("Accept-Encoding: identity\r\n")
	buf.WriteString("Connection: Keep-Alive\r\n")
	buf.WriteString("\r\n")
	if log.LogDebug() {
		log.Debugf("Sending to %s:\n%s", hostAddr, fnet.DebugSummary(buf.Bytes(), 512))
	}
	if err := sock.SetWriteDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
		return err
	}
	n, err := sock.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("request write: %w", err)
	}
	if n != buf.Len() {
		return fmt.Errorf("request short write: %d instead of %d", n, buf.Len())
	}
	return nil
}

// readResponseHead parses the status line and the header block, leaving the
// buffered reader positioned at the first body byte.
func (c *Client) readResponseHead(sock net.Conn) (int, http.Header, *bufio.Reader, error) {
	if err := sock.SetReadDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
		return 0, nil, nil, err
	}
	br := bufio.NewReader(sock)
	line, err := br.ReadString('\n')
	if err != nil {
		return 0, nil, nil, fmt.Errorf("status line read: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, nil, nil, fmt.Errorf("%w: %q", ErrMalformedStatus, strings.TrimSpace(line))
	}
	code := int(ParseDecimal([]byte(fields[1])))
	if len(fields[1]) != 3 || code < 100 {
		return 0, nil, nil, fmt.Errorf("%w: status %q", ErrMalformedStatus, fields[1])
	}
	hdr := make(http.Header)
	for {
		line, err = br.ReadString('\n')
		if err != nil {
			return 0, nil, nil, fmt.Errorf("header read: %w", err)
		}
		if len(line) <= 2 { // bare \r\n, end of headers
			break
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			// Tolerated, skipped.
			log.LogVf("Ignoring header line without colon: %q", strings.TrimSpace(line))
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		hdr.Add(key, val) // duplicates retained
	}
	log.Debugf("Got %d with %d header keys", code, len(hdr))
	return code, hdr, br, nil
}

// Response is a parsed status code and headers plus the body as a read-once
// stream over the rest of the connection. Closing the body closes the
// connection.
type Response struct {
	Code   int
	Header http.Header
	Body   io.ReadCloser
}

// ContentLength returns the parsed Content-Length header or -1 when absent
// or unparsable. Only Content-Length delimited bodies are supported (no
// chunked encoding); consumers must stop reading at this many bytes.
func (r *Response) ContentLength() int64 {
	v := r.Header.Get("Content-Length")
	if v == "" {
		return -1
	}
	return ParseDecimal([]byte(v))
}

type bodyReader struct {
	br      *bufio.Reader
	sock    net.Conn
	timeout time.Duration
}

// Read re-arms the read deadline each time so a long transfer only fails
// when the socket goes idle for the timeout, not after a fixed total time.
func (b *bodyReader) Read(p []byte) (int, error) {
	if err := b.sock.SetReadDeadline(time.Now().Add(b.timeout)); err != nil {
		return 0, err
	}
	return b.br.Read(p)
}

func (b *bodyReader) Close() error {
	return b.sock.Close()
}
