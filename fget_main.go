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

// fget is a command line file fetcher: it downloads one http(s) resource,
// in parallel byte ranges when the server supports them, using its own
// minimal HTTP/1.1 client.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"fortio.org/cli"
	"fortio.org/dflag"
	"fortio.org/log"
	"fortio.org/version"
	"github.com/anhtranbk/fget/download"
	"github.com/anhtranbk/fget/fhttp"
	"github.com/anhtranbk/fget/pbar"
)

var (
	outputFlag = flag.String("o", "", "Output `file` path (default: filename from the URL)")
	numThreadsFlag = flag.Int("t", download.DefaultNumParts,
		"`Number` of parallel range connections (1-32), used when the server supports byte ranges")
	infoFlag       = flag.Bool("i", false, "Only print the HEAD response status and headers")
	noRedirectFlag = flag.Bool("r", false, "Do not follow 3xx redirects")
	timeoutFlag    = flag.Int("T", 10, "Connect/read/write socket timeout in `seconds`")
	insecureFlag   = flag.Bool("k", false, "Do not verify certs in https connections")
	caCertFlag     = flag.String("cacert", "",
		"`Path` to a custom CA certificate file for https connections, if empty use the system CAs")
	userAgentFlag = dflag.Flag("u", dflag.New(fhttp.DefaultUserAgent,
		"`User-Agent` header sent with each request"))
)

func main() {
	os.Exit(Main())
}

// Main is the real main, returning the exit code, so it stays testable.
func Main() int {
	cli.ProgramName = "fget"
	cli.ArgsHelp = "url"
	cli.MinArgs = 1
	cli.MaxArgs = 1
	cli.Main() // exits on usage error
	_, _, fullVersion := version.FromBuildInfo()
	log.LogVf("fget %s", fullVersion)
	nt := *numThreadsFlag
	if nt < download.MinParts || nt > download.MaxParts {
		return log.FErrf("invalid -t %d, must be between %d and %d",
			nt, download.MinParts, download.MaxParts)
	}
	if *timeoutFlag <= 0 {
		return log.FErrf("invalid -T %d, timeout must be positive", *timeoutFlag)
	}
	cfg := &download.Config{
		URL:        flag.Arg(0),
		Output:     *outputFlag,
		NumParts:   nt,
		UserAgent:  userAgentFlag.Get(),
		Timeout:    time.Duration(*timeoutFlag) * time.Second,
		NoRedirect: *noRedirectFlag,
		TLS:        fhttp.TLSOptions{Insecure: *insecureFlag, CACert: *caCertFlag},
	}
	d, err := download.New(cfg, pbar.NewPrinter(os.Stderr))
	if err != nil {
		return log.FErrf("%v", err)
	}
	ctx := context.Background()
	if *infoFlag {
		_, resp, err := d.Probe(ctx)
		if err != nil {
			return log.FErrf("%v", err)
		}
		printInfo(os.Stdout, resp)
		return 0
	}
	if err = d.Run(ctx); err != nil {
		return log.FErrf("download failed: %v", err)
	}
	return 0
}

// printInfo dumps the HEAD status line and headers, one "key: value" per
// line (sorted for a stable output, the wire order isn't kept by the
// header map).
func printInfo(w io.Writer, resp *fhttp.Response) {
	fmt.Fprintf(w, "HTTP/1.1 %d %s\n", resp.Code, http.StatusText(resp.Code))
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range resp.Header.Values(k) {
			fmt.Fprintf(w, "%s: %s\n", k, v)
		}
	}
}
