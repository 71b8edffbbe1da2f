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

// Package download is fget's parallel range download controller. It probes
// the origin with a HEAD request, and when the server advertises byte range
// support splits the resource into contiguous parts fetched concurrently
// over independent connections, each streaming into its own temp file,
// merged in order into the output path at the end.
package download // import "github.com/anhtranbk/fget/download"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"fortio.org/log"
	"github.com/anhtranbk/fget/fhttp"
	"github.com/anhtranbk/fget/fnet"
	"github.com/anhtranbk/fget/furl"
	"github.com/google/uuid"
)

const (
	// DefaultNumParts is the default parallel connection count.
	DefaultNumParts = 4
	// MinParts and MaxParts bound the -t flag.
	MinParts = 1
	MaxParts = 32
	// chunkSize is the read/write granularity for part streaming and merge.
	chunkSize = 8 * fnet.KILOBYTE
)

var (
	// ErrEmptyLength is returned when the HEAD probe reports a zero or
	// missing Content-Length.
	ErrEmptyLength = errors.New("server returned empty or missing content length")
	// ErrBadNumParts is returned for a part count outside [MinParts,MaxParts].
	ErrBadNumParts = fmt.Errorf("invalid number of parts, must be between %d and %d", MinParts, MaxParts)

	errShortBody = errors.New("connection closed before end of range")
)

// PartError wraps the failure of one download part; it aborts the whole
// download (no retry).
type PartError struct {
	Part int
	Err  error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("part %d failed: %v", e.Part, e.Err)
}

func (e *PartError) Unwrap() error {
	return e.Err
}

// Config is the external surface of the downloader.
type Config struct {
	URL        string
	Output     string // destination path, defaults to the URL filename
	NumParts   int    // max parallel ranged connections, [1,32]
	UserAgent  string
	Timeout    time.Duration // connect/read/write socket deadline
	NoRedirect bool
	TLS        fhttp.TLSOptions
}

// Info is what the HEAD probe learned about the resource.
type Info struct {
	Length         int64
	RangeSupported bool
	ContentType    string
}

// Part is one contiguous byte range of the resource, [Start,End] inclusive.
type Part struct {
	Idx      int
	Start    int64
	End      int64
	TempPath string
}

// Len returns the number of bytes in the part (0 for the empty tail parts
// produced when the resource is smaller than the part count).
func (p *Part) Len() int64 {
	if p.End < p.Start {
		return 0
	}
	return p.End - p.Start + 1
}

// Downloader drives one download from probe to merged output.
type Downloader struct {
	cfg   Config
	url   *furl.UrlInfo
	obs   Observer
	runID uuid.UUID
}

// New parses and validates the configuration. A nil observer disables
// progress reporting.
func New(cfg *Config, obs Observer) (*Downloader, error) {
	u, err := furl.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	d := &Downloader{cfg: *cfg, url: u, obs: obs, runID: uuid.New()}
	if d.cfg.NumParts == 0 {
		d.cfg.NumParts = DefaultNumParts
	}
	if d.cfg.NumParts < MinParts || d.cfg.NumParts > MaxParts {
		return nil, fmt.Errorf("%w: %d", ErrBadNumParts, d.cfg.NumParts)
	}
	if d.cfg.Output == "" {
		d.cfg.Output = u.Fname
	}
	if d.obs == nil {
		d.obs = NopObserver{}
	}
	return d, nil
}

// Output returns the destination path the merged file will be written to.
func (d *Downloader) Output() string {
	return d.cfg.Output
}

func (d *Downloader) clientOptions() *fhttp.ClientOptions {
	o := fhttp.NewClientOptions()
	o.Timeout = d.cfg.Timeout
	o.FollowRedirects = !d.cfg.NoRedirect
	o.UserAgent = d.cfg.UserAgent
	o.TLS = d.cfg.TLS
	return o
}

// Probe issues the HEAD request and extracts length, range support and
// content type. The returned response has its body already closed; its
// Code and Header are for callers that print the raw metadata (-i mode).
func (d *Downloader) Probe(ctx context.Context) (*Info, *fhttp.Response, error) {
	cli, err := fhttp.NewClient(ctx, d.url, d.clientOptions())
	if err != nil {
		return nil, nil, err
	}
	resp, err := cli.Head(ctx, d.url.Path)
	if err != nil {
		return nil, nil, err
	}
	resp.Body.Close()
	info := &Info{
		RangeSupported: resp.Header.Get("Accept-Ranges") == "bytes",
		ContentType:    resp.Header.Get("Content-Type"),
	}
	if cl := resp.ContentLength(); cl > 0 {
		info.Length = cl
	}
	log.LogVf("Probe of %s: %+v", d.url, info)
	return info, resp, nil
}

// Plan splits length bytes into n inclusive ranges covering [0,length)
// exactly, disjoint, in order; the last part absorbs the remainder. When
// length < n the tail parts come out empty (End < Start), which is valid.
func Plan(length int64, n int) []Part {
	chunk := (length + int64(n) - 1) / int64(n)
	parts := make([]Part, n)
	for i := range n {
		start := int64(i) * chunk
		end := min(start+chunk-1, length-1)
		parts[i] = Part{Idx: i, Start: start, End: end}
	}
	return parts
}

// Run performs the whole download: probe, plan, fan out workers, consume
// their events until all parts are done, then merge the parts into the
// output path. The first failing part aborts the run; sibling workers die
// on their own socket deadlines.
func (d *Downloader) Run(ctx context.Context) error {
	info, _, err := d.Probe(ctx)
	if err != nil {
		return err
	}
	if info.Length <= 0 {
		return ErrEmptyLength
	}
	n := d.cfg.NumParts
	if !info.RangeSupported && n > 1 {
		log.Infof("Server doesn't accept byte ranges, downloading on a single connection")
		n = 1
	}
	parts := Plan(info.Length, n)
	for i := range parts {
		parts[i].TempPath = filepath.Join(os.TempDir(), fmt.Sprintf("%s.%d", d.url.Fname, i))
	}
	log.S(log.Info, "starting download", log.Str("run", d.runID.String()),
		log.Str("url", d.url.String()), log.Attr("length", info.Length),
		log.Attr("parts", n), log.Str("type", info.ContentType))
	d.obs.OnInit(len(parts))

	events := make(chan event, 4*len(parts))
	done := make(chan struct{})
	for i := range parts {
		go d.worker(ctx, parts[i], events, done)
	}
	var failure error
	remaining := len(parts)
	for remaining > 0 && failure == nil {
		ev := <-events
		switch ev.kind {
		case evStarted:
			d.obs.OnDownloadStart(ev.part, ev.length)
		case evProgress:
			d.obs.OnProgress(ev.part, ev.bytes)
		case evDone:
			parts[ev.part].TempPath = ev.tempPath
			d.obs.OnDownloadEnd(ev.part)
			remaining--
		case evFailed:
			d.obs.OnDownloadEnd(ev.part)
			failure = &PartError{Part: ev.part, Err: ev.err}
		}
	}
	// Unblocks any worker still trying to send; late sends are dropped.
	close(done)
	if failure != nil {
		return failure
	}
	return d.merge(parts)
}

// merge concatenates the part temp files in index order into the output.
// A single part is renamed directly; otherwise parts are stream copied
// into <output>.tmp which is renamed into place at the end.
func (d *Downloader) merge(parts []Part) error {
	out := d.cfg.Output
	if len(parts) == 1 {
		if err := moveFile(parts[0].TempPath, out); err != nil {
			return fmt.Errorf("placing output: %w", err)
		}
		log.Infof("Saved %s", out)
		return nil
	}
	tmp := out + ".tmp"
	w, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("merge output create: %w", err)
	}
	buf := make([]byte, chunkSize)
	for i := range parts {
		r, err := os.Open(parts[i].TempPath)
		if err != nil {
			w.Close()
			return fmt.Errorf("merge open part %d: %w", i, err)
		}
		_, err = io.CopyBuffer(w, r, buf)
		r.Close()
		if err != nil {
			w.Close()
			return fmt.Errorf("merge copy part %d: %w", i, err)
		}
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("merge close: %w", err)
	}
	if err = os.Rename(tmp, out); err != nil {
		return fmt.Errorf("merge rename: %w", err)
	}
	for i := range parts {
		if err = os.Remove(parts[i].TempPath); err != nil {
			log.Warnf("Leaving temp file behind: %v", err)
		}
	}
	log.Infof("Saved %s (%d parts)", out, len(parts))
	return nil
}

// moveFile renames src to dst, falling back to a copy when they live on
// different filesystems (the temp dir often does).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	buf := make([]byte, chunkSize)
	if _, err = io.CopyBuffer(out, in, buf); err != nil {
		out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

type eventKind int

const (
	evStarted eventKind = iota
	evProgress
	evDone
	evFailed
)

// event is the worker to controller message. Per part the stream is
// started, progress*, then done or failed.
type event struct {
	kind     eventKind
	part     int
	length   int64  // started: part byte length
	bytes    int64  // progress: total bytes written in this part
	tempPath string // done
	err      error  // failed
}

// worker fetches one part over its own connection into its own temp file.
// It owns its client, socket and file; the only shared state is the event
// channel.
func (d *Downloader) worker(ctx context.Context, p Part, events chan<- event, done <-chan struct{}) {
	send := func(ev event) {
		ev.part = p.Idx
		select {
		case events <- ev:
		case <-done:
		}
	}
	fail := func(err error) {
		log.S(log.Error, "part failed", log.Attr("part", p.Idx), log.Attr("err", err),
			log.Str("run", d.runID.String()))
		send(event{kind: evFailed, err: err})
	}
	partLen := p.Len()
	if partLen == 0 {
		// Empty tail range (resource smaller than part count): no network,
		// just the placeholder file.
		f, err := os.Create(p.TempPath)
		if err != nil {
			fail(fmt.Errorf("temp file create: %w", err))
			return
		}
		f.Close()
		send(event{kind: evStarted, length: 0})
		send(event{kind: evDone, tempPath: p.TempPath})
		return
	}
	cli, err := fhttp.NewClient(ctx, d.url, d.clientOptions())
	if err != nil {
		fail(err)
		return
	}
	hdr := make(http.Header)
	hdr.Set("Range", fmt.Sprintf("bytes=%d-%d", p.Start, p.End))
	resp, err := cli.Get(ctx, d.url.Path, hdr)
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()
	log.Debugf("[%d] Got %d for range %d-%d", p.Idx, resp.Code, p.Start, p.End)
	send(event{kind: evStarted, length: partLen})
	f, err := os.Create(p.TempPath)
	if err != nil {
		fail(fmt.Errorf("temp file create: %w", err))
		return
	}
	written, err := streamBody(resp.Body, f, partLen, send)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fail(err)
		return
	}
	if written < partLen {
		fail(fmt.Errorf("%w: got %d of %d bytes", errShortBody, written, partLen))
		return
	}
	log.S(log.Info, "part done", log.Attr("part", p.Idx), log.Attr("bytes", written),
		log.Str("run", d.runID.String()))
	send(event{kind: evDone, tempPath: p.TempPath})
}

// streamBody copies up to partLen bytes from the response body to the temp
// file in fixed size chunks, emitting a progress event after each write.
// Stops at EOF or at partLen, whichever comes first.
func streamBody(body io.Reader, f *os.File, partLen int64, send func(event)) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for written < partLen {
		toRead := min(int64(chunkSize), partLen-written)
		n, err := body.Read(buf[:toRead])
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("temp file write: %w", werr)
			}
			written += int64(n)
			send(event{kind: evProgress, bytes: written})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return written, fmt.Errorf("body read: %w", err)
		}
	}
	return written, nil
}
