package links

import (
	"net/url"
	"regexp"
	"strings"
)

// LinkKind distinguishes what a URL found in a post most likely points at.
type LinkKind string

const (
	KindTicket    LinkKind = "ticket"
	KindOrganizer LinkKind = "organizer"
)

// Link is one URL pulled out of a post's text.
type Link struct {
	URL  string
	Kind LinkKind
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>()"']+`)

// ticketHosts are hosts that sell or register tickets.
var ticketHosts = []string{
	"timepad.ru",
	"ticketscloud",
	"kassir.ru",
	"afisha.yandex",
	"qtickets",
	"radario.ru",
	"intickets.ru",
	"eventbrite",
}

var ticketPathWords = []string{"ticket", "bilet", "register", "registration", "event"}

// ExtractURLs returns the unique URLs found in text, in order of appearance.
// Trailing punctuation that regularly sticks to pasted links is stripped.
func ExtractURLs(text string) []string {
	raw := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimRight(u, ".,;:!?")
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Classify splits a URL into ticket vs organizer by host and path heuristics.
// Anything unrecognized counts as an organizer link.
func Classify(rawURL string) LinkKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return KindOrganizer
	}
	host := strings.ToLower(u.Hostname())
	for _, th := range ticketHosts {
		if strings.Contains(host, th) {
			return KindTicket
		}
	}
	path := strings.ToLower(u.Path)
	for _, w := range ticketPathWords {
		if strings.Contains(path, w) {
			return KindTicket
		}
	}
	return KindOrganizer
}

// Extract returns all classified links from text.
func Extract(text string) []Link {
	urls := ExtractURLs(text)
	out := make([]Link, 0, len(urls))
	for _, u := range urls {
		out = append(out, Link{URL: u, Kind: Classify(u)})
	}
	return out
}

// TicketLinks filters ls down to ticket links.
func TicketLinks(ls []Link) []string {
	var out []string
	for _, l := range ls {
		if l.Kind == KindTicket {
			out = append(out, l.URL)
		}
	}
	return out
}

// OrganizerLinks filters ls down to organizer links.
func OrganizerLinks(ls []Link) []string {
	var out []string
	for _, l := range ls {
		if l.Kind == KindOrganizer {
			out = append(out, l.URL)
		}
	}
	return out
}
