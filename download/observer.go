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

package download // import "github.com/anhtranbk/fget/download"

// Observer is the event sink the controller notifies about download
// lifecycle and progress. All callbacks run on the controller's event loop
// goroutine: implementations must not block meaningfully. Renderers
// (progress bars etc.) implement this interface outside of this package.
type Observer interface {
	// OnInit is called once after planning with the number of parts.
	OnInit(parts int)
	// OnDownloadStart is called once per part with its byte length.
	OnDownloadStart(part int, length int64)
	// OnProgress is called after each chunk write with the total bytes
	// done in that part so far. Monotonic non decreasing, <= length.
	OnProgress(part int, bytes int64)
	// OnDownloadEnd is called at most once per part on terminal status
	// (success or failure).
	OnDownloadEnd(part int)
}

// NopObserver is an Observer that ignores everything, for library callers
// that don't render progress.
type NopObserver struct{}

func (NopObserver) OnInit(int)                 {}
func (NopObserver) OnDownloadStart(int, int64) {}
func (NopObserver) OnProgress(int, int64)      {}
func (NopObserver) OnDownloadEnd(int)          {}
