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

// Package pbar is the console progress renderer: a download.Observer that
// prints one line per part lifecycle change and per 10% progress step.
package pbar // import "github.com/anhtranbk/fget/pbar"

import (
	"fmt"
	"io"
	"os"
)

// Printer implements download.Observer by printing to a writer (stderr by
// default). Callbacks arrive from the controller's event loop goroutine
// only, so no locking; every callback returns immediately.
type Printer struct {
	out     io.Writer
	lengths []int64
	lastPct []int
}

// NewPrinter returns a Printer writing to out (os.Stderr when nil).
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stderr
	}
	return &Printer{out: out}
}

func (p *Printer) OnInit(parts int) {
	p.lengths = make([]int64, parts)
	p.lastPct = make([]int, parts)
	for i := range p.lastPct {
		p.lastPct[i] = -1
	}
	fmt.Fprintf(p.out, "downloading in %d part(s)\n", parts)
}

func (p *Printer) OnDownloadStart(part int, length int64) {
	p.lengths[part] = length
	fmt.Fprintf(p.out, "part %d: %d bytes\n", part, length)
}

func (p *Printer) OnProgress(part int, bytes int64) {
	length := p.lengths[part]
	if length <= 0 {
		return
	}
	pct := int(100 * bytes / length)
	step := pct / 10 * 10
	if step <= p.lastPct[part] {
		return
	}
	p.lastPct[part] = step
	fmt.Fprintf(p.out, "part %d: %3d%%\n", part, pct)
}

func (p *Printer) OnDownloadEnd(part int) {
	fmt.Fprintf(p.out, "part %d: done\n", part)
}
