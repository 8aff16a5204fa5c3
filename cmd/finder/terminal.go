package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"gfbeer/venue-finder/internal/model"
)

// terminalRenderer prints the list view as a table.
type terminalRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminalRenderer(out io.Writer) *terminalRenderer {
	return &terminalRenderer{out: out}
}

func (t *terminalRenderer) OnResultsReady(page model.ResultPage, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\n%s\n", title)

	tw := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVENUE\tPOSTCODE\tGF\tDISTANCE")
	for _, v := range page.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.ID, truncate(v.Name, 40), v.Postcode, statusLabel(v.GFStatus), distanceLabel(v.DistanceKm))
	}
	_ = tw.Flush()

	if page.PageCount > 1 {
		fmt.Fprintf(t.out, "page %d of %d (%d venues)\n", page.PageNumber, page.PageCount, page.TotalCount)
	}
}

func (t *terminalRenderer) OnNoResults(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\n%s\n", message)
}

func (t *terminalRenderer) OnLoading(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s\n", message)
}

func (t *terminalRenderer) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminalRenderer) venue(v model.VenueSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tw := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "\n%s\n", v.Name)
	fmt.Fprintf(tw, "address\t%s\n", strings.Join(nonEmpty(v.Address, v.City, v.Postcode), ", "))
	fmt.Fprintf(tw, "gluten-free\t%s\n", statusLabel(v.GFStatus))
	if v.BeerDetails != "" {
		fmt.Fprintf(tw, "beers\t%s\n", v.BeerDetails)
	}
	if v.DistanceKm != nil {
		fmt.Fprintf(tw, "distance\t%s\n", distanceLabel(v.DistanceKm))
	}
	_ = tw.Flush()
}

func statusLabel(s model.GFStatus) string {
	switch s {
	case model.GFAlwaysTapCask:
		return "always (tap/cask)"
	case model.GFAlwaysBottleCan:
		return "always (bottle/can)"
	case model.GFCurrently:
		return "currently"
	case model.GFNotCurrently:
		return "not currently"
	default:
		return "unknown"
	}
}

func distanceLabel(km *float64) string {
	if km == nil {
		return "-"
	}
	if *km < 1 {
		return fmt.Sprintf("%.0f m", *km*1000)
	}
	return fmt.Sprintf("%.1f km", *km)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
