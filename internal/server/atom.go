package server

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/feed"
	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

const atomNS = "http://www.w3.org/2005/Atom"

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	NS      string      `xml:"xmlns,attr"`
	ID      string      `xml:"id"`
	Title   string      `xml:"title"`
	Updated string      `xml:"updated"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Updated    string         `xml:"updated"`
	Published  string         `xml:"published"`
	Author     atomAuthor     `xml:"author"`
	Summary    string         `xml:"summary"`
	Links      []atomLink     `xml:"link"`
	Categories []atomCategory `xml:"category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
}

type atomCategory struct {
	Term  string `xml:"term,attr"`
	Label string `xml:"label,attr,omitempty"`
}

func (s *Server) handleAtom(w http.ResponseWriter, r *http.Request) {
	page := s.engine.FetchRecentCatches(r.Context(), feed.PageRequest{})
	base := "http://" + r.Host

	out, err := xml.MarshalIndent(buildAtom(base, page.Entries, time.Now().UTC()), "", "  ")
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to render feed")
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

// buildAtom converts feed entries to an Atom document. The feed's updated
// time is the newest entry, or now when there are none.
func buildAtom(base string, entries []harvest.CatchFeedEntry, now time.Time) atomFeed {
	f := atomFeed{
		NS:      atomNS,
		ID:      "urn:catchfeed:recent-catches",
		Title:   "Recent catches",
		Updated: now.Format(time.RFC3339),
		Links: []atomLink{
			{Href: base + "/feed.atom", Rel: "self", Type: "application/atom+xml"},
			{Href: base + "/digest", Rel: "alternate", Type: "text/html"},
		},
	}

	for i, e := range entries {
		created := e.CreatedAt.UTC().Format(time.RFC3339)
		if i == 0 {
			f.Updated = created
		}
		entry := atomEntry{
			ID:        "urn:catchfeed:report:" + e.ID,
			Title:     entryTitle(e),
			Updated:   created,
			Published: created,
			Author:    atomAuthor{Name: e.AnglerName},
			Summary:   entrySummary(e),
			Links:     []atomLink{{Href: base + "/api/anglers/" + e.UserID, Rel: "alternate", Type: "application/json"}},
		}
		if e.PhotoURL != nil && *e.PhotoURL != "" {
			entry.Links = append(entry.Links, atomLink{Href: *e.PhotoURL, Rel: "enclosure"})
		}
		for _, c := range e.SpeciesList {
			entry.Categories = append(entry.Categories, atomCategory{Term: string(c.Species), Label: c.Species.DisplayName()})
		}
		f.Entries = append(f.Entries, entry)
	}
	return f
}

func entryTitle(e harvest.CatchFeedEntry) string {
	noun := "fish"
	if e.PrimarySpecies != "" {
		noun = e.PrimarySpecies.DisplayName()
	}
	return fmt.Sprintf("%s caught %d fish (%s)", e.AnglerName, e.TotalFish, noun)
}

func entrySummary(e harvest.CatchFeedEntry) string {
	parts := make([]string, 0, len(e.SpeciesList))
	for _, c := range e.SpeciesList {
		parts = append(parts, fmt.Sprintf("%d %s", c.Count, c.Species.DisplayName()))
	}
	summary := strings.Join(parts, ", ")
	if e.Location != nil && *e.Location != "" {
		summary += " near " + *e.Location
	}
	return summary
}
