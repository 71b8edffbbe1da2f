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

// Package furl is fget's minimal URL model: it splits an absolute
// http(s) URL into the pieces the downloader needs (scheme, host, port,
// path, filename). It is intentionally simpler than net/url: no userinfo,
// no percent decoding, query string kept as part of the path.
package furl // import "github.com/anhtranbk/fget/furl"

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/log"
	"fortio.org/safecast"
	"fortio.org/sets"
)

const (
	// SchemeHTTP is the plaintext scheme.
	SchemeHTTP = "http"
	// SchemeHTTPS is the TLS scheme.
	SchemeHTTPS = "https"
	// StandardHTTPPort is the default port for http:// URLs.
	StandardHTTPPort = 80
	// StandardHTTPSPort is the default port for https:// URLs.
	StandardHTTPSPort = 443
)

var (
	// ErrMalformedURL is returned when the URL doesn't have at least
	// scheme://authority/path.
	ErrMalformedURL = errors.New("malformed url")
	// ErrBadScheme is returned for anything that isn't http:// or https://.
	ErrBadScheme = errors.New("invalid url scheme, only http and https are supported")
	// ErrBadPort is returned when the authority carries a port that isn't a
	// decimal number in the uint16 range.
	ErrBadPort = errors.New("invalid port in url")

	validSchemes = sets.New(SchemeHTTP+":", SchemeHTTPS+":")
)

// UrlInfo is the parsed form of an absolute http(s) URL. Immutable after
// Parse, copied by value into each download worker.
type UrlInfo struct {
	Scheme string // "http" or "https", no colon.
	Domain string // DNS name or IP literal, no port.
	Port   uint16
	Path   string // starts with "/", includes any query string.
	Fname  string // last path segment, default output filename.
}

// Parse splits url on "/" the way the rest of fget expects: scheme, empty,
// authority, then path segments. The query string stays inside Path (and
// Fname when it trails the last segment); callers needing a stricter
// filename must sanitize.
func Parse(url string) (*UrlInfo, error) {
	parts := strings.Split(url, "/")
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedURL, url)
	}
	if !validSchemes.Has(parts[0]) {
		return nil, fmt.Errorf("%w: %q", ErrBadScheme, parts[0])
	}
	scheme := strings.TrimSuffix(parts[0], ":")
	domain, port, err := splitHostPort(parts[2], scheme)
	if err != nil {
		return nil, err
	}
	// Path starts right after "scheme:" + "//" + authority.
	pathIdx := len(parts[0]) + len(parts[1]) + len(parts[2]) + 2
	fname := parts[len(parts)-1]
	if fname == "" {
		return nil, fmt.Errorf("%w: no filename in %q", ErrMalformedURL, url)
	}
	u := &UrlInfo{
		Scheme: scheme,
		Domain: domain,
		Port:   port,
		Path:   url[pathIdx:],
		Fname:  fname,
	}
	log.Debugf("Parsed %q -> %+v", url, u)
	return u, nil
}

// HostAddr returns the host:port form used both to dial and as the Host:
// request header.
func (u *UrlInfo) HostAddr() string {
	return fmt.Sprintf("%s:%d", u.Domain, u.Port)
}

// IsTLS is true for https:// URLs.
func (u *UrlInfo) IsTLS() bool {
	return u.Scheme == SchemeHTTPS
}

func (u *UrlInfo) String() string {
	return u.Scheme + "://" + u.HostAddr() + u.Path
}

func splitHostPort(authority, scheme string) (string, uint16, error) {
	if !strings.Contains(authority, ":") {
		if scheme == SchemeHTTPS {
			return authority, StandardHTTPSPort, nil
		}
		return authority, StandardHTTPPort, nil
	}
	parts := strings.Split(authority, ":")
	if len(parts) != 2 || parts[0] == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedURL, authority)
	}
	p, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrBadPort, parts[1])
	}
	port, err := safecast.Convert[uint16](p)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %d", ErrBadPort, p)
	}
	return parts[0], port, nil
}
