// Package main provides whalectl, a small management CLI for a running
// allocator. It talks to the dashboard HTTP API.
//
// Usage:
//
//	whalectl [-addr URL] status
//	whalectl [-addr URL] top [-n 10]
//	whalectl [-addr URL] list [-status DISCARDED]
//	whalectl [-addr URL] details <address>
//	whalectl [-addr URL] rescan <address>
//	whalectl [-addr URL] recalculate
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/go-resty/resty/v2"

	"whale-allocator/internal/domain"
	"whale-allocator/internal/lifecycle"
	"whale-allocator/internal/web"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Allocator dashboard address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	c := &client{http: resty.New().SetBaseURL(*addr).SetTimeout(30 * time.Second)}

	var err error
	switch cmd := args[0]; cmd {
	case "status":
		err = c.status()
	case "top":
		fs := flag.NewFlagSet("top", flag.ExitOnError)
		n := fs.Int("n", 10, "Number of whales to show")
		fs.Parse(args[1:])
		err = c.top(*n)
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		status := fs.String("status", string(domain.StatusDiscarded), "Status to list")
		fs.Parse(args[1:])
		err = c.list(*status)
	case "details":
		err = c.details(requireAddress(args))
	case "rescan":
		err = c.rescan(requireAddress(args))
	case "recalculate":
		err = c.recalculate()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: whalectl [-addr URL] <status|top|list|details|rescan|recalculate> [args]")
}

func requireAddress(args []string) string {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "%s requires an address argument\n", args[0])
		os.Exit(2)
	}
	return args[1]
}

type client struct {
	http *resty.Client
}

type apiError struct {
	Error string `json:"error"`
}

// get fetches path into out, surfacing the API's error payload on failure.
func (c *client) get(path string, out any) error {
	var apiErr apiError
	resp, err := c.http.R().SetResult(out).SetError(&apiErr).Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %s", resp.Status(), apiErr.Error)
	}
	return nil
}

func (c *client) post(path string, out any) error {
	var apiErr apiError
	resp, err := c.http.R().SetResult(out).SetError(&apiErr).Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %s", resp.Status(), apiErr.Error)
	}
	return nil
}

func (c *client) status() error {
	var s web.StatusResponse
	if err := c.get("/status", &s); err != nil {
		return err
	}
	fmt.Printf("status:     %s\n", s.Status)
	fmt.Printf("mode:       %s\n", s.Mode)
	fmt.Printf("uptime:     %s\n", s.Uptime)
	fmt.Printf("active:     %d\n", s.Active)
	fmt.Printf("discarded:  %d\n", s.Discarded)
	fmt.Printf("candidates: %d\n", s.Candidates)
	return nil
}

func (c *client) top(n int) error {
	var list web.ListResponse
	if err := c.get("/whales?status=ACTIVE", &list); err != nil {
		return err
	}
	if n < len(list.Whales) {
		list.Whales = list.Whales[:n]
	}
	printWhales(list.Whales)
	return nil
}

func (c *client) list(status string) error {
	var list web.ListResponse
	if err := c.get("/whales?status="+status, &list); err != nil {
		return err
	}
	printWhales(list.Whales)
	return nil
}

func printWhales(whales []*domain.WhaleRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSTATUS\tSCORE\tVERSION\tLAST SCANNED")
	for _, rec := range whales {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n",
			rec.Address, rec.Status, rec.Score.Value, rec.Score.Version,
			formatMillis(rec.LastScannedAt))
	}
	w.Flush()
}

func (c *client) details(address string) error {
	var d web.DetailsResponse
	if err := c.get("/whales/"+address, &d); err != nil {
		return err
	}
	fmt.Printf("address:      %s\n", d.Whale.Address)
	fmt.Printf("status:       %s\n", d.Whale.Status)
	if d.Whale.DiscardedReason != "" {
		fmt.Printf("reason:       %s\n", d.Whale.DiscardedReason)
	}
	fmt.Printf("score:        %.4f (version %s, seq %d)\n",
		d.Whale.Score.Value, d.Whale.Score.Version, d.Whale.ScoreSeq)
	fmt.Printf("trades:       %d\n", d.TradeCount)
	fmt.Printf("last scanned: %s\n", formatMillis(d.Whale.LastScannedAt))

	if len(d.History) > 0 {
		fmt.Println("\nscore history:")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COMPUTED\tSCORE\tTRADES\tTOKENS\tWIN RATE\tSTATUS")
		for _, s := range d.History {
			fmt.Fprintf(w, "%s\t%.4f\t%d\t%d\t%.2f\t%s\n",
				formatMillis(s.ComputedAt), s.Value, s.TradeCount, s.TokenCount,
				s.WinRate, s.Status)
		}
		w.Flush()
	}
	return nil
}

func (c *client) rescan(address string) error {
	var rec domain.WhaleRecord
	if err := c.post("/rescan/"+address, &rec); err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", rec.Address, rec.Status)
	return nil
}

func (c *client) recalculate() error {
	var result lifecycle.SweepResult
	if err := c.post("/recalculate", &result); err != nil {
		return err
	}
	fmt.Printf("evaluated %d whales: %d active, %d discarded, %d failed\n",
		result.Evaluated, result.Active, result.Discarded, result.Failed)
	return nil
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
