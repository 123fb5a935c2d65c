package main

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

var debugEnabled bool

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	debugEnabled = enabled
}

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// contentSelectors are tried in order to isolate the main article body.
var contentSelectors = []string{
	"article",
	"main",
	".post-content",
	".entry-content",
	".post-body",
	".article-body",
	".blog-post",
	".single-post",
	"#content",
	".content",
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// PostFetcher fetches blog posts and extracts their main content.
type PostFetcher struct {
	client    *http.Client
	converter *md.Converter
}

// NewPostFetcher creates a fetcher with a browser-like identity and a
// bounded timeout.
func NewPostFetcher() *PostFetcher {
	return &PostFetcher{
		client:    &http.Client{Timeout: 15 * time.Second},
		converter: md.NewConverter("", true, nil),
	}
}

// Fetch retrieves one post. Failures are reported through the post status
// rather than an error return so a batch can continue past blocked URLs.
// The operation has no side effects and is safe to repeat.
func (pf *PostFetcher) Fetch(postURL string) *Post {
	post := &Post{URL: postURL, Slug: slugFromURL(postURL)}

	req, err := http.NewRequest(http.MethodGet, postURL, nil)
	if err != nil {
		post.Status = FetchFailed
		post.Err = err
		return post
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := pf.client.Do(req)
	if err != nil {
		post.Status = FetchFailed
		post.Err = err
		return post
	}
	defer resp.Body.Close()

	debugLog("fetched %s: status=%d", postURL, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		post.Err = &HTTPError{StatusCode: resp.StatusCode, URL: postURL}
		if blockedStatus(resp.StatusCode) {
			post.Status = FetchBlocked
		} else {
			post.Status = FetchFailed
		}
		return post
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		post.Status = FetchFailed
		post.Err = fmt.Errorf("parsing HTML: %w", err)
		return post
	}

	pf.extract(post, doc)
	post.Status = FetchOK
	return post
}

// blockedStatus reports whether a status code looks like bot blocking
// rather than a plain failure.
func blockedStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// extract pulls the title, headings, links and body text out of the page.
func (pf *PostFetcher) extract(post *Post, doc *goquery.Document) {
	// Title: first h1, falling back to <title>
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		post.Title = strings.TrimSpace(h1.Text())
	}
	if post.Title == "" {
		post.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	var content *goquery.Selection
	for _, selector := range contentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			content = sel
			break
		}
	}
	if content == nil {
		content = doc.Find("body").First()
		if content.Length() == 0 {
			content = doc.Selection
		}
	}

	content.Find("h2, h3").Each(func(_ int, s *goquery.Selection) {
		post.Headings = append(post.Headings, Heading{
			Level: goquery.NodeName(s),
			Text:  strings.TrimSpace(s.Text()),
		})
	})

	host := ""
	if parsed, err := url.Parse(post.URL); err == nil {
		host = parsed.Host
	}
	content.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
			return
		}
		link := Link{Text: strings.TrimSpace(s.Text()), Href: href}
		switch {
		case host != "" && strings.Contains(href, host):
			post.InternalLinks = append(post.InternalLinks, link)
		case strings.HasPrefix(href, "/"):
			post.InternalLinks = append(post.InternalLinks, link)
		case strings.HasPrefix(href, "http"):
			post.ExternalLinks = append(post.ExternalLinks, link)
		}
	})

	body := ""
	if html, err := content.Html(); err == nil {
		if markdown, err := pf.converter.ConvertString(html); err == nil {
			body = markdown
		}
	}
	if strings.TrimSpace(body) == "" {
		body = content.Text()
	}
	post.BodyText = blankLines.ReplaceAllString(strings.TrimSpace(body), "\n\n")
	post.WordCount = countWords(post.BodyText)
}

// countWords counts whitespace-separated tokens.
func countWords(text string) int {
	return len(strings.Fields(text))
}

// slugFromURL extracts the last path segment of a post URL.
func slugFromURL(postURL string) string {
	parsed, err := url.Parse(postURL)
	if err != nil {
		return "post"
	}
	path := strings.TrimRight(parsed.Path, "/")
	slug := path[strings.LastIndex(path, "/")+1:]
	if slug == "" {
		return "post"
	}
	return slug
}
