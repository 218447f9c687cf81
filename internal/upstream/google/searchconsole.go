package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SearchConsoleRequest is one dashboard action against Search Console.
type SearchConsoleRequest struct {
	Action   string          `json:"action"`
	SiteURL  string          `json:"site_url,omitempty"`
	Feedpath string          `json:"feedpath,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// SearchConsoleActions lists the supported Search Console actions.
var SearchConsoleActions = []string{
	"sites.list",
	"searchanalytics.query",
	"sitemaps.list",
	"sitemaps.submit",
}

// SearchConsole executes one Search Console action and returns the raw
// upstream body and status for pass-through.
func (c *Client) SearchConsole(ctx context.Context, req SearchConsoleRequest) (json.RawMessage, int, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	var method, path string
	var body io.Reader

	switch req.Action {
	case "sites.list":
		method, path = http.MethodGet, "/webmasters/v3/sites"
	case "searchanalytics.query":
		if err := validSiteURL(req.SiteURL); err != nil {
			return nil, 0, err
		}
		if len(req.Body) == 0 {
			return nil, 0, fmt.Errorf("searchanalytics.query requires a body")
		}
		method = http.MethodPost
		path = "/webmasters/v3/sites/" + url.PathEscape(req.SiteURL) + "/searchAnalytics/query"
		body = bytes.NewReader(req.Body)
	case "sitemaps.list":
		if err := validSiteURL(req.SiteURL); err != nil {
			return nil, 0, err
		}
		method = http.MethodGet
		path = "/webmasters/v3/sites/" + url.PathEscape(req.SiteURL) + "/sitemaps"
	case "sitemaps.submit":
		if err := validSiteURL(req.SiteURL); err != nil {
			return nil, 0, err
		}
		if req.Feedpath == "" {
			return nil, 0, fmt.Errorf("sitemaps.submit requires feedpath")
		}
		method = http.MethodPut
		path = "/webmasters/v3/sites/" + url.PathEscape(req.SiteURL) + "/sitemaps/" + url.PathEscape(req.Feedpath)
	default:
		return nil, 0, fmt.Errorf("unknown search console action %q", req.Action)
	}

	return c.do(ctx, "google_search_console", method, c.cfg.SearchConsoleBaseURL+path, token, body)
}

// validSiteURL accepts the two property forms Search Console uses:
// URL-prefix properties and sc-domain properties.
func validSiteURL(site string) error {
	if site == "" {
		return fmt.Errorf("site_url is required")
	}
	if strings.HasPrefix(site, "sc-domain:") {
		return nil
	}
	u, err := url.Parse(site)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site_url %q is not a Search Console property", site)
	}
	return nil
}
