// Package digest composes the weekly catch digest in markdown and renders
// it to HTML.
package digest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/catchfeed/internal/feed"
	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

const title = "Weekly Catch Digest"

// Source supplies the digest content.
type Source interface {
	FetchTopAnglers(ctx context.Context) []harvest.TopAngler
	FetchRecentCatches(ctx context.Context, req feed.PageRequest) feed.Page
	LeaderboardWindowDays() int
}

// Digest is a composed weekly digest.
type Digest struct {
	Start      time.Time
	End        time.Time
	TopAnglers []harvest.TopAngler
	Catches    []harvest.CatchFeedEntry
	TLDR       string
	Body       string
}

// Composer builds digests.
type Composer struct {
	source Source
	now    func() time.Time
}

// NewComposer creates a composer over source.
func NewComposer(source Source) *Composer {
	return &Composer{source: source, now: time.Now}
}

// WithClock overrides the clock that anchors the digest window.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	c.now = now
	return c
}

// Compose builds the digest from the current leaderboard and the first
// page of the feed.
func (c *Composer) Compose(ctx context.Context, limit int) *Digest {
	end := c.now()
	days := c.source.LeaderboardWindowDays()
	d := &Digest{
		Start:      end.AddDate(0, 0, -days),
		End:        end,
		TopAnglers: c.source.FetchTopAnglers(ctx),
		Catches:    c.source.FetchRecentCatches(ctx, feed.PageRequest{Limit: limit}).Entries,
	}
	d.TLDR = summarize(d.TopAnglers, d.Catches)
	d.Body = assembleBody(d.TopAnglers, d.Catches)
	return d
}

// Window returns the human-readable digest window.
func (d *Digest) Window() string {
	return FormatWindow(d.Start, d.End)
}

// Markdown returns the full digest document.
func (d *Digest) Markdown() string {
	return fmt.Sprintf("# %s\n\n*%s*\n\n%s\n\n---\n\n%s\n", title, d.Window(), d.TLDR, d.Body)
}

// HTML renders the digest with goldmark.
func (d *Digest) HTML() (string, error) {
	return RenderHTML(d.Markdown())
}

// FormatWindow formats a date range for display.
// Same day: "Feb 06, 2026"
// Range: "Feb 01 - Feb 06, 2026"
func FormatWindow(start, end time.Time) string {
	if start.Format(harvest.DateLayout) == end.Format(harvest.DateLayout) {
		return end.Format("Jan 02, 2006")
	}
	if start.Year() != end.Year() {
		return fmt.Sprintf("%s - %s", start.Format("Jan 02, 2006"), end.Format("Jan 02, 2006"))
	}
	return fmt.Sprintf("%s - %s", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts markdown to HTML.
func RenderHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func summarize(top []harvest.TopAngler, catches []harvest.CatchFeedEntry) string {
	if len(top) == 0 && len(catches) == 0 {
		return "- No catches reported this week."
	}

	var bullets []string
	for _, a := range top {
		switch a.Metric {
		case harvest.MetricCatches:
			bullets = append(bullets, fmt.Sprintf("- **%s** landed the most fish: %s %s", a.DisplayName, a.FormattedValue, a.Unit))
		case harvest.MetricSpecies:
			bullets = append(bullets, fmt.Sprintf("- **%s** caught the widest variety: %s %s", a.DisplayName, a.FormattedValue, a.Unit))
		case harvest.MetricLength:
			bullets = append(bullets, fmt.Sprintf("- **%s** reported the longest fish: %s", a.DisplayName, a.FormattedValue))
		}
	}

	total := 0
	for _, e := range catches {
		total += e.TotalFish
	}
	if len(catches) > 0 {
		bullets = append(bullets, fmt.Sprintf("- %d recent reports, %d fish", len(catches), total))
	}
	return strings.Join(bullets, "\n")
}

func assembleBody(top []harvest.TopAngler, catches []harvest.CatchFeedEntry) string {
	var sections []string

	if len(top) > 0 {
		var lines []string
		for _, a := range top {
			lines = append(lines, fmt.Sprintf("| %s | %s | %s |", metricLabel(a.Metric), a.DisplayName, result(a)))
		}
		sections = append(sections, "## Top Anglers\n\n| Category | Angler | Result |\n|---|---|---|\n"+strings.Join(lines, "\n"))
	}

	if len(catches) > 0 {
		var entries []string
		for _, e := range catches {
			entries = append(entries, formatCatch(e))
		}
		sections = append(sections, "## Recent Catches\n\n"+strings.Join(entries, "\n\n"))
	}

	if len(sections) == 0 {
		return "No catch data available for this period."
	}
	return strings.Join(sections, "\n\n---\n\n")
}

func formatCatch(e harvest.CatchFeedEntry) string {
	var species []string
	for _, c := range e.SpeciesList {
		species = append(species, fmt.Sprintf("%s ×%d", c.Species.DisplayName(), c.Count))
	}
	line := fmt.Sprintf("### %s: %d fish\n\n%s", e.AnglerName, e.TotalFish, strings.Join(species, ", "))

	var meta []string
	meta = append(meta, e.CreatedAt.Format("Jan 02 15:04"))
	if e.Location != nil && *e.Location != "" {
		meta = append(meta, *e.Location)
	}
	if e.PhotoURL != nil && *e.PhotoURL != "" {
		meta = append(meta, fmt.Sprintf("[photo](%s)", *e.PhotoURL))
	}
	return line + "\n\n*" + strings.Join(meta, " · ") + "*"
}

func metricLabel(m harvest.Metric) string {
	switch m {
	case harvest.MetricCatches:
		return "Most fish"
	case harvest.MetricSpecies:
		return "Most species"
	case harvest.MetricLength:
		return "Longest fish"
	}
	return string(m)
}

// result renders the winning value; lengths already carry their unit.
func result(a harvest.TopAngler) string {
	if a.Metric == harvest.MetricLength || a.Unit == "" {
		return a.FormattedValue
	}
	return a.FormattedValue + " " + a.Unit
}
