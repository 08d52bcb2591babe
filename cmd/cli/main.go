package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"github.com/hamed0406/portwatch/internal/domain"
)

func main() {
	api := pflag.String("api", envOr("API_BASE", "http://localhost:8080"), "portwatch API base URL")
	key := pflag.String("key", os.Getenv("API_KEY"), "API key")
	runNow := pflag.Bool("run", false, "trigger a cycle (admin key) instead of reading the latest report")
	pflag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rep, err := fetchReport(ctx, http.DefaultClient, strings.TrimRight(*api, "/"), *key, *runNow)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error contacting API:", err)
		os.Exit(2)
	}
	printReport(os.Stdout, rep, time.Now())
	if rep.Count(domain.StatusDown) > 0 {
		os.Exit(1)
	}
}

func fetchReport(ctx context.Context, c *http.Client, base, key string, runNow bool) (domain.Report, error) {
	method, path := http.MethodGet, "/api/report"
	if runNow {
		method, path = http.MethodPost, "/api/cycles"
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, nil)
	if err != nil {
		return domain.Report{}, err
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := c.Do(req)
	if err != nil {
		return domain.Report{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Report{}, fmt.Errorf("no report yet; the first cycle has not finished")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Report{}, fmt.Errorf("API returned status: %s", resp.Status)
	}
	var rep domain.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return domain.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return rep, nil
}

func printReport(w io.Writer, rep domain.Report, now time.Time) {
	fmt.Fprintf(w, "cycle finished %s (%d endpoints, %d down)\n",
		humanize.RelTime(rep.FinishedAt, now, "ago", "from now"),
		rep.Len(), rep.Count(domain.StatusDown))
	for _, e := range rep.Entries {
		line := e.Verdict.StatusLine()
		if e.Verdict.Status == domain.StatusDown {
			line += fmt.Sprintf(" (%s after %d attempts)", e.Verdict.LastOutcome.Kind, e.Verdict.AttemptsUsed)
		}
		fmt.Fprintln(w, line)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
