// Package visitors captures website visitor sessions and enriches them
// with channel, bot, and company heuristics.
package visitors

import (
	"strings"
	"time"
)

// Channel classifies how a visitor arrived.
type Channel string

// Supported acquisition channels.
const (
	ChannelDirect   Channel = "direct"
	ChannelSearch   Channel = "search"
	ChannelSocial   Channel = "social"
	ChannelReferral Channel = "referral"
)

// Session is a visitor session as captured by the tracking endpoint.
type Session struct {
	ID        string
	Domain    string
	UserAgent string
	Referrer  string
	// Hostname is the reverse-DNS hostname of the visitor IP when the
	// edge provides one; empty otherwise.
	Hostname  string
	FirstSeen time.Time
	LastSeen  time.Time
}

// Enrichment is the derived metadata attached to a session.
type Enrichment struct {
	Channel      Channel
	IsBot        bool
	CompanyGuess string
}

// PageviewEvent is a single append-only pageview row for a session.
type PageviewEvent struct {
	ID         string
	SessionID  string
	Domain     string
	Path       string
	Referrer   string
	UserAgent  string
	OccurredAt time.Time
}

var searchHosts = []string{
	"google.", "bing.", "yahoo.", "duckduckgo.", "baidu.", "yandex.",
	"ecosia.", "startpage.",
}

var socialHosts = []string{
	"facebook.", "fb.com", "twitter.", "x.com", "t.co", "linkedin.",
	"instagram.", "pinterest.", "reddit.", "tiktok.", "youtube.", "youtu.be",
}

var botMarkers = []string{
	"bot", "crawler", "spider", "slurp", "headless", "lighthouse",
	"pingdom", "uptimerobot", "curl/", "wget/", "python-requests",
	"go-http-client", "facebookexternalhit", "ahrefs", "semrush",
}

// ispMarkers are hostname fragments that identify consumer ISPs and cloud
// ranges rather than company networks; no company guess is made for these.
var ispMarkers = []string{
	"comcast", "verizon", "charter", "spectrum", "cox.net", "att.net",
	"btinternet", "virginmedia", "telstra", "rogers", "shaw",
	"amazonaws", "googleusercontent", "azure", "cloudflare", "akamai",
	"dynamic", "dsl", "dialup", "pool", "res.rr",
}

// Enrich derives channel, bot, and company metadata for a session.
func Enrich(s Session) Enrichment {
	return Enrichment{
		Channel:      ClassifyChannel(s.Referrer),
		IsBot:        IsBot(s.UserAgent),
		CompanyGuess: CompanyFromHostname(s.Hostname),
	}
}

// ClassifyChannel maps a referrer URL to an acquisition channel. An
// empty referrer is direct traffic.
func ClassifyChannel(referrer string) Channel {
	ref := strings.ToLower(strings.TrimSpace(referrer))
	if ref == "" {
		return ChannelDirect
	}
	host := ref
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	host = strings.TrimPrefix(host, "www.")
	for _, marker := range searchHosts {
		if strings.Contains(host, marker) {
			return ChannelSearch
		}
	}
	for _, marker := range socialHosts {
		if strings.Contains(host, marker) {
			return ChannelSocial
		}
	}
	return ChannelReferral
}

// IsBot reports whether a user agent looks like an automated client.
// An empty user agent counts as a bot.
func IsBot(userAgent string) bool {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return true
	}
	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// CompanyFromHostname derives a company-name guess from a reverse-DNS
// hostname. Consumer ISP and cloud hostnames produce no guess.
func CompanyFromHostname(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	if host == "" {
		return ""
	}
	for _, marker := range ispMarkers {
		if strings.Contains(host, marker) {
			return ""
		}
	}
	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	if len(labels) < 2 {
		return ""
	}
	// The label left of the public suffix is the organization name.
	// Two-part suffixes like co.uk push it one label further left.
	idx := len(labels) - 2
	if idx > 0 && len(labels[idx]) <= 3 && len(labels[len(labels)-1]) == 2 {
		idx--
	}
	name := labels[idx]
	if name == "" || strings.ContainsAny(name, "0123456789") {
		return ""
	}
	return titleCase(strings.ReplaceAll(name, "-", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
