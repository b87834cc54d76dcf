package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/snippetd/internal/service"
)

// link is one navigation entry of the Link response header.
type link struct {
	rel string
	url string
}

// buildLinks synthesizes the first/next/prev navigation links for a page.
//
// Every link preserves the caller's filter parameters and substitutes only
// limit and marker:
//
//   - first always points at the head of the traversal: same filters, no
//     marker.
//   - next appears when the over-fetch found more rows; its marker is the
//     last item of the trimmed page.
//   - prev appears when the backward probe found a full page behind the
//     anchor; a prev pointing at the very first page carries no marker.
func buildLinks(base url.URL, query url.Values, page *service.Page) []link {
	links := []link{
		{rel: "first", url: pageURL(base, query, page.Limit, 0)},
	}
	if page.HasNext {
		links = append(links, link{
			rel: "next",
			url: pageURL(base, query, page.Limit, page.NextMarker),
		})
	}
	if page.HasPrev {
		links = append(links, link{
			rel: "prev",
			url: pageURL(base, query, page.Limit, page.PrevMarker),
		})
	}
	return links
}

// pageURL rewrites the query string with the given limit and marker. A zero
// marker is omitted entirely.
func pageURL(base url.URL, query url.Values, limit int, marker int64) string {
	q := url.Values{}
	for key, values := range query {
		if key == "limit" || key == "marker" {
			continue
		}
		q[key] = values
	}
	q.Set("limit", strconv.Itoa(limit))
	if marker != 0 {
		q.Set("marker", strconv.FormatInt(marker, 10))
	}
	base.RawQuery = q.Encode()
	return base.String()
}

// formatLinkHeader renders links as a comma-separated Link header value,
// e.g. `<http://host/snippets?limit=3>; rel="first"`.
func formatLinkHeader(links []link) string {
	parts := make([]string, len(links))
	for i, l := range links {
		parts[i] = fmt.Sprintf("<%s>; rel=\"%s\"", l.url, l.rel)
	}
	return strings.Join(parts, ", ")
}

// requestBaseURL reconstructs the absolute URL of the current request,
// honouring forwarded-proto/host headers set by a reverse proxy.
func requestBaseURL(r *http.Request) url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}
	return url.URL{Scheme: scheme, Host: host, Path: r.URL.Path}
}
