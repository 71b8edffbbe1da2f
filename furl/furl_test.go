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

package furl_test

import (
	"errors"
	"testing"

	"github.com/anhtranbk/fget/furl"
)

func TestParse(t *testing.T) {
	u, err := furl.Parse("https://download.virtualbox.org/virtualbox/7.0.8/VirtualBox-7.0.8_BETA4-156879-macOSArm64.dmg")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if u.Scheme != "https" {
		t.Errorf("scheme %q, expected https", u.Scheme)
	}
	if u.Domain != "download.virtualbox.org" {
		t.Errorf("domain %q", u.Domain)
	}
	if u.Port != 443 {
		t.Errorf("port %d, expected 443", u.Port)
	}
	if u.Path != "/virtualbox/7.0.8/VirtualBox-7.0.8_BETA4-156879-macOSArm64.dmg" {
		t.Errorf("path %q", u.Path)
	}
	if u.Fname != "VirtualBox-7.0.8_BETA4-156879-macOSArm64.dmg" {
		t.Errorf("fname %q", u.Fname)
	}
	if !u.IsTLS() {
		t.Errorf("expected IsTLS for https url")
	}
	if u.HostAddr() != "download.virtualbox.org:443" {
		t.Errorf("host addr %q", u.HostAddr())
	}
}

func TestParseCustomPort(t *testing.T) {
	u, err := furl.Parse("http://localhost:8080/download/GoTiengViet.dmg")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if u.Scheme != "http" || u.Domain != "localhost" || u.Port != 8080 {
		t.Errorf("got %+v", u)
	}
	if u.IsTLS() {
		t.Errorf("http url shouldn't be tls")
	}
	if u.Path != "/download/GoTiengViet.dmg" || u.Fname != "GoTiengViet.dmg" {
		t.Errorf("path %q fname %q", u.Path, u.Fname)
	}
	if u.HostAddr() != "localhost:8080" {
		t.Errorf("host addr %q", u.HostAddr())
	}
}

func TestParseQueryKeptInPath(t *testing.T) {
	u, err := furl.Parse("http://example.com/dir/file.bin?sig=abc&x=1")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if u.Path != "/dir/file.bin?sig=abc&x=1" {
		t.Errorf("path %q, query must stay in path", u.Path)
	}
	if u.Fname != "file.bin?sig=abc&x=1" {
		t.Errorf("fname %q, query trails the last segment", u.Fname)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		url  string
		want error
	}{
		{"ftp://example.com/file.bin", furl.ErrBadScheme},
		{"htt://example.com/file.bin", furl.ErrBadScheme},
		{"example.com/file.bin", furl.ErrMalformedURL},
		{"http://example.com", furl.ErrMalformedURL},
		{"http://example.com/", furl.ErrMalformedURL},
		{"http://example.com:65536/file.bin", furl.ErrBadPort},
		{"http://example.com:-1/file.bin", furl.ErrBadPort},
		{"http://example.com:http/file.bin", furl.ErrBadPort},
		{"http://example.com:1:2/file.bin", furl.ErrMalformedURL},
	}
	for _, tst := range tests {
		_, err := furl.Parse(tst.url)
		if err == nil {
			t.Errorf("Parse(%q): expected error, got none", tst.url)
			continue
		}
		if !errors.Is(err, tst.want) {
			t.Errorf("Parse(%q): got %v, expected %v", tst.url, err, tst.want)
		}
	}
}

func TestParsePortBoundary(t *testing.T) {
	u, err := furl.Parse("http://example.com:65535/f")
	if err != nil {
		t.Fatalf("65535 is a valid port: %v", err)
	}
	if u.Port != 65535 {
		t.Errorf("port %d", u.Port)
	}
}
