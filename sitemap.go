package main

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	userAgent       = "Mozilla/5.0 (compatible; BlogRevivalBot/1.0; +https://airanking.com)"
	maxSitemapDepth = 3
)

// sitemapXML decodes both urlset and sitemapindex documents; the XMLName
// local name tells them apart.
type sitemapXML struct {
	XMLName  xml.Name
	Sitemaps []sitemapLoc `xml:"sitemap"`
	URLs     []sitemapLoc `xml:"url"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// SitemapLocator discovers internal page links for a domain.
type SitemapLocator struct {
	client *http.Client
}

// NewSitemapLocator creates a locator with a bounded-timeout client.
func NewSitemapLocator() *SitemapLocator {
	return &SitemapLocator{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Locate returns the flattened set of pages from the first sitemap source
// that parses into at least one URL. Candidates are tried in order:
// /sitemap.xml, any robots.txt declarations, then common CMS defaults.
// Returns an empty set on total failure, never an error.
func (sl *SitemapLocator) Locate(domain string) []PageLink {
	base := normalizeDomain(domain)
	if base == "" {
		return nil
	}

	candidates := []string{base + "/sitemap.xml"}
	candidates = append(candidates, sl.robotsSitemaps(base)...)
	candidates = append(candidates,
		base+"/sitemap_index.xml",
		base+"/sitemap-index.xml",
		base+"/wp-sitemap.xml",
	)

	visited := make(map[string]bool)
	for _, candidate := range candidates {
		if pages := sl.fetchAndParse(candidate, 0, visited); len(pages) > 0 {
			return dedupePages(pages)
		}
	}
	return nil
}

// robotsSitemaps extracts Sitemap: directives from the site's robots.txt.
func (sl *SitemapLocator) robotsSitemaps(base string) []string {
	body, err := sl.get(base + "/robots.txt")
	if err != nil {
		return nil
	}

	var sitemaps []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 8 && strings.EqualFold(line[:8], "sitemap:") {
			if loc := strings.TrimSpace(line[8:]); loc != "" {
				sitemaps = append(sitemaps, loc)
			}
		}
	}
	return sitemaps
}

// fetchAndParse retrieves one sitemap and parses it, recursing into index
// entries. The visited set and depth bound keep self-referencing indexes
// from looping. Any failure yields an empty result, not an error.
func (sl *SitemapLocator) fetchAndParse(sitemapURL string, depth int, visited map[string]bool) []PageLink {
	if depth > maxSitemapDepth || visited[sitemapURL] {
		return nil
	}
	visited[sitemapURL] = true

	body, err := sl.get(sitemapURL)
	if err != nil {
		debugLog("sitemap fetch failed for %s: %v", sitemapURL, err)
		return nil
	}
	return sl.parseSitemap(body, depth, visited)
}

func (sl *SitemapLocator) parseSitemap(data []byte, depth int, visited map[string]bool) []PageLink {
	var doc sitemapXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil
	}

	var pages []PageLink
	if strings.EqualFold(doc.XMLName.Local, "sitemapindex") {
		for _, child := range doc.Sitemaps {
			loc := strings.TrimSpace(child.Loc)
			if loc == "" {
				continue
			}
			pages = append(pages, sl.fetchAndParse(loc, depth+1, visited)...)
		}
		return pages
	}

	for _, entry := range doc.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		pages = append(pages, pageFromURL(loc))
	}
	return pages
}

func (sl *SitemapLocator) get(rawURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := sl.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	return io.ReadAll(resp.Body)
}

// pageFromURL builds a PageLink with a slug and a readable title derived
// from the URL path.
func pageFromURL(pageURL string) PageLink {
	slug := "/"
	if parsed, err := url.Parse(pageURL); err == nil {
		if path := strings.TrimRight(parsed.Path, "/"); path != "" {
			slug = path
		}
	}
	return PageLink{URL: pageURL, Slug: slug, Title: titleFromSlug(slug)}
}

// titleFromSlug turns "/blog/seo-basics" into "Seo Basics".
func titleFromSlug(slug string) string {
	raw := slug[strings.LastIndex(slug, "/")+1:]
	raw = strings.NewReplacer("-", " ", "_", " ").Replace(raw)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slug
	}
	return cases.Title(language.English).String(raw)
}

// dedupePages keeps the first occurrence of each URL, preserving order.
func dedupePages(pages []PageLink) []PageLink {
	seen := make(map[string]bool, len(pages))
	out := pages[:0]
	for _, page := range pages {
		if seen[page.URL] {
			continue
		}
		seen[page.URL] = true
		out = append(out, page)
	}
	return out
}

// normalizeDomain ensures a scheme and strips any trailing slash.
func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return strings.TrimRight(domain, "/")
}
