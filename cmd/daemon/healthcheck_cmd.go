// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/lessonguard/internal/platform/httpx"
)

// runHealthcheckCLI probes a running issuer; container health checks use it
// because the image ships no curl.
func runHealthcheckCLI(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://127.0.0.1:8088", "issuer base URL")
	timeout := fs.Duration("timeout", 5*time.Second, "check timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := httpx.NewClient(*timeout)
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/healthz")
	if err != nil {
		fmt.Fprintf(stderr, "Healthcheck failed (network): %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Healthcheck failed (status): %s\n", resp.Status)
		return 1
	}
	fmt.Fprintln(stdout, "Healthcheck successful")
	return 0
}
