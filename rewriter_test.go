package main

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aktagon/llmkit/anthropic/types"
)

func testConfig() *Config {
	settings := &Settings{}
	settings.Agents.Auditor = AgentSettings{Model: "test-model", MaxTokens: 1024}
	settings.Agents.Writer = AgentSettings{Model: "test-model", MaxTokens: 4096}
	applySettingsDefaults(settings)
	return &Config{Settings: settings}
}

func testRewriter(t *testing.T, fn promptFunc) *Rewriter {
	t.Helper()
	r, err := NewRewriter("test-key", testConfig())
	if err != nil {
		t.Fatalf("NewRewriter() error = %v", err)
	}
	r.prompt = fn
	return r
}

func testPost() *Post {
	return &Post{
		URL:       "https://example.com/blog/seo-basics",
		Slug:      "seo-basics",
		Title:     "SEO Basics for Beginners",
		Status:    FetchOK,
		BodyText:  "Search engines index pages. " + strings.Repeat("More detail here. ", 20),
		WordCount: 84,
		Headings: []Heading{
			{Level: "h2", Text: "What is crawling?"},
		},
	}
}

func costEquals(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestNewRewriterRequiresAPIKey(t *testing.T) {
	if _, err := NewRewriter("", testConfig()); err == nil {
		t.Error("NewRewriter(\"\") error = nil, want error")
	}
}

func TestAuditParsesJSON(t *testing.T) {
	fn := func(system, user, schema string, settings types.RequestSettings) (string, Usage, error) {
		response := "```json\n" + `{
  "thin_sections": ["What is crawling?"],
  "outdated_claims": [],
  "missing_internal_links": ["link building"],
  "missing_external_links": [],
  "overall_word_count": 84,
  "verdict": "thin"
}` + "\n```"
		return response, Usage{InputTokens: 1000, OutputTokens: 100}, nil
	}
	r := testRewriter(t, fn)

	audit, usage, err := r.Audit(testPost(), nil)
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}

	if audit.Verdict != VerdictThin {
		t.Errorf("Verdict = %q, want %q", audit.Verdict, VerdictThin)
	}
	if len(audit.ThinSections) != 1 {
		t.Errorf("got %d thin sections, want 1", len(audit.ThinSections))
	}
	if audit.ParseError != "" {
		t.Errorf("ParseError = %q, want empty on valid JSON", audit.ParseError)
	}

	// 1000 in at $3/MTok + 100 out at $15/MTok
	wantCost := 1000*3.0/1e6 + 100*15.0/1e6
	if !costEquals(usage.CostUSD, wantCost) {
		t.Errorf("CostUSD = %v, want %v", usage.CostUSD, wantCost)
	}
}

func TestAuditFallsBackOnInvalidJSON(t *testing.T) {
	fn := func(system, user, schema string, settings types.RequestSettings) (string, Usage, error) {
		return "This post looks thin to me, honestly.", Usage{InputTokens: 500, OutputTokens: 50}, nil
	}
	r := testRewriter(t, fn)
	post := testPost()

	audit, _, err := r.Audit(post, nil)
	if err != nil {
		t.Fatalf("Audit() error = %v, want graceful fallback", err)
	}

	if audit.Verdict != VerdictAverage {
		t.Errorf("fallback Verdict = %q, want %q", audit.Verdict, VerdictAverage)
	}
	if audit.ParseError == "" {
		t.Error("ParseError empty, want raw response retained")
	}
	if audit.OverallWordCount != post.WordCount {
		t.Errorf("OverallWordCount = %d, want %d", audit.OverallWordCount, post.WordCount)
	}
}

func TestAuditErrorSurfaced(t *testing.T) {
	wantErr := errors.New("rate limited")
	fn := func(system, user, schema string, settings types.RequestSettings) (string, Usage, error) {
		return "", Usage{}, wantErr
	}
	r := testRewriter(t, fn)

	_, _, err := r.Audit(testPost(), nil)
	if err == nil {
		t.Fatal("Audit() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "audit pass") {
		t.Errorf("error = %q, want it to name the audit pass", err)
	}
	if !errors.Is(err, wantErr) {
		t.Error("error does not wrap the underlying failure")
	}
}

func TestRewritePromptContents(t *testing.T) {
	var captured string
	fn := func(system, user, schema string, settings types.RequestSettings) (string, Usage, error) {
		captured = user
		return "# Rewritten\n\nBody text.", Usage{InputTokens: 2000, OutputTokens: 500}, nil
	}
	r := testRewriter(t, fn)

	post := testPost()
	audit := &Audit{Verdict: VerdictThin, ThinSections: []string{"What is crawling?"}}
	pages := []PageLink{
		{URL: "https://example.com/blog/crawling-explained", Slug: "/blog/crawling-explained", Title: "Crawling Explained"},
		{URL: "https://example.com/pricing", Slug: "/pricing", Title: "Pricing"},
	}

	markdown, usage, err := r.Rewrite(post, audit, pages)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}

	if markdown != "# Rewritten\n\nBody text." {
		t.Errorf("Rewrite() = %q", markdown)
	}
	for _, want := range []string{
		"SEO Basics for Beginners",
		`"verdict": "thin"`,
		"https://example.com/blog/crawling-explained | Crawling Explained",
		"1200",                        // minimum word count
		post.BodyText[:40],            // original content present
	} {
		if !strings.Contains(captured, want) {
			t.Errorf("rewrite prompt missing %q", want)
		}
	}
	if strings.Contains(captured, "{{.") {
		t.Error("rewrite prompt contains unexpanded template variables")
	}

	wantCost := 2000*3.0/1e6 + 500*15.0/1e6
	if !costEquals(usage.CostUSD, wantCost) {
		t.Errorf("CostUSD = %v, want %v", usage.CostUSD, wantCost)
	}
}

func TestRewriteErrorSurfaced(t *testing.T) {
	fn := func(system, user, schema string, settings types.RequestSettings) (string, Usage, error) {
		return "", Usage{}, errors.New("overloaded")
	}
	r := testRewriter(t, fn)

	_, _, err := r.Rewrite(testPost(), &Audit{Verdict: VerdictAverage}, nil)
	if err == nil {
		t.Fatal("Rewrite() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "rewrite pass") {
		t.Errorf("error = %q, want it to name the rewrite pass", err)
	}
}

func TestComposeFlagsBelowMinimum(t *testing.T) {
	r := testRewriter(t, nil)
	post := testPost()
	audit := &Audit{Verdict: VerdictThin}

	tests := []struct {
		name     string
		markdown string
		below    bool
	}{
		{"short rewrite", strings.Repeat("word ", 900), true},
		{"exactly minimum", strings.Repeat("word ", 1200), false},
		{"long rewrite", strings.Repeat("word ", 1500), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := r.Compose(post, audit, tt.markdown, Usage{CostUSD: 0.01})
			if doc.BelowMinimum != tt.below {
				t.Errorf("BelowMinimum = %v (words=%d), want %v", doc.BelowMinimum, doc.WordCount, tt.below)
			}
			if doc.WordCount != countWords(tt.markdown) {
				t.Errorf("WordCount = %d, want %d", doc.WordCount, countWords(tt.markdown))
			}
		})
	}
}

func TestComposeCountsLinks(t *testing.T) {
	r := testRewriter(t, nil)
	post := testPost() // hosted on example.com

	markdown := `## What Is Crawling?

See the [crawl budget guide](/blog/crawl-budget) and
[link building](https://example.com/blog/link-building) for more.
According to [Google Search Central](https://developers.google.com/search),
crawling comes first. Anchors like [this one](#what-is-crawling) are ignored.`

	doc := r.Compose(post, &Audit{}, markdown, Usage{})

	if doc.InternalLinks != 2 {
		t.Errorf("InternalLinks = %d, want 2", doc.InternalLinks)
	}
	if doc.ExternalLinks != 1 {
		t.Errorf("ExternalLinks = %d, want 1", doc.ExternalLinks)
	}
}

func TestCountMarkdownLinks(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		internal int
		external int
	}{
		{"empty", "no links here", 0, 0},
		{"relative internal", "[a](/blog/a)", 1, 0},
		{"absolute internal", "[a](https://example.com/a)", 1, 0},
		{"external", "[a](https://other.org/a)", 0, 1},
		{"anchor ignored", "[top](#top)", 0, 0},
		{"mixed", "[a](/a) [b](https://other.org/b) [c](https://example.com/c)", 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			internal, external := countMarkdownLinks(tt.markdown, "example.com")
			if internal != tt.internal || external != tt.external {
				t.Errorf("countMarkdownLinks() = %d/%d, want %d/%d", internal, external, tt.internal, tt.external)
			}
		})
	}
}

func TestSelectInternalLinks(t *testing.T) {
	post := testPost() // title and headings mention "crawling" and "basics"
	pages := []PageLink{
		{URL: "https://example.com/pricing", Title: "Pricing"},
		{URL: "https://example.com/blog/crawling-explained", Title: "Crawling Explained"},
		{URL: "https://example.com/blog/seo-basics", Title: "Seo Basics"}, // the post itself
		{URL: "https://example.com/about", Title: "About"},
		{URL: "https://example.com/blog/link-building", Title: "Link Building"},
		{URL: "https://example.com/blog/keyword-research", Title: "Keyword Research"},
		{URL: "https://example.com/contact", Title: "Contact"},
	}

	selected := selectInternalLinks(post, pages, 5)

	if len(selected) != 5 {
		t.Fatalf("selected %d links, want 5", len(selected))
	}
	if selected[0].URL != "https://example.com/blog/crawling-explained" {
		t.Errorf("top link = %q, want the overlapping title ranked first", selected[0].URL)
	}
	for _, page := range selected {
		if page.URL == post.URL {
			t.Error("selection includes the post's own URL")
		}
	}

	// Deterministic: same inputs, same output
	again := selectInternalLinks(post, pages, 5)
	for i := range selected {
		if selected[i].URL != again[i].URL {
			t.Fatal("selectInternalLinks() is not deterministic")
		}
	}
}

func TestSelectInternalLinksBounds(t *testing.T) {
	post := testPost()

	if got := selectInternalLinks(post, nil, 5); got != nil {
		t.Errorf("selectInternalLinks(nil pages) = %v, want nil", got)
	}
	if got := selectInternalLinks(post, []PageLink{{URL: "https://example.com/a"}}, 0); got != nil {
		t.Errorf("selectInternalLinks(max=0) = %v, want nil", got)
	}

	two := []PageLink{
		{URL: "https://example.com/a", Title: "A"},
		{URL: "https://example.com/b", Title: "B"},
	}
	if got := selectInternalLinks(post, two, 5); len(got) != 2 {
		t.Errorf("selected %d links from 2 candidates, want 2", len(got))
	}
}

func TestFormatSitePages(t *testing.T) {
	if got := formatSitePages(nil, 100); got != "No sitemap pages available." {
		t.Errorf("formatSitePages(nil) = %q", got)
	}

	pages := []PageLink{
		{URL: "https://example.com/a", Title: "A"},
		{URL: "https://example.com/b", Title: "B"},
		{URL: "https://example.com/c", Title: "C"},
	}
	got := formatSitePages(pages, 2)
	if got != "- https://example.com/a | A\n- https://example.com/b | B" {
		t.Errorf("formatSitePages() = %q, want capped two-line list", got)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fence no newline", "```abc", "abc"},
		{"surrounding whitespace", "  ```json\n{}\n```  ", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFences(tt.input); got != tt.expected {
				t.Errorf("stripCodeFences(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTruncateContent(t *testing.T) {
	long := strings.Repeat("a", 100)

	if got := truncateContent(long, 10); got != long[:10]+"..." {
		t.Errorf("truncateContent() = %q", got)
	}
	if got := truncateContent("short", 10); got != "short" {
		t.Errorf("truncateContent() = %q, want unchanged", got)
	}
	if got := truncateContent(long, 0); got != long {
		t.Error("truncateContent(0) should disable truncation")
	}

	// The cut must land on a rune boundary, never mid-character
	multibyte := strings.Repeat("é", 10) // 2 bytes each
	got := truncateContent(multibyte, 5)
	if !utf8.ValidString(got) {
		t.Errorf("truncateContent() produced invalid UTF-8: %q", got)
	}
	if got != strings.Repeat("é", 2)+"..." {
		t.Errorf("truncateContent() = %q, want cut backed up to a rune boundary", got)
	}
}

func TestConfigCost(t *testing.T) {
	config := testConfig()
	config.Settings.Pricing["fancy-model"] = Pricing{InputPerMTok: 10, OutputPerMTok: 50}

	if got := config.Cost("fancy-model", 1_000_000, 0); !costEquals(got, 10) {
		t.Errorf("Cost(fancy-model) = %v, want 10", got)
	}
	// Unknown models fall back to default rates
	if got := config.Cost("unknown-model", 1_000_000, 1_000_000); !costEquals(got, 18) {
		t.Errorf("Cost(unknown-model) = %v, want 18", got)
	}
}

func TestFormatSitePagesInPrompt(t *testing.T) {
	var captured string
	fn := func(system, user, schema string, settings types.RequestSettings) (string, Usage, error) {
		captured = user
		return `{"verdict":"good"}`, Usage{}, nil
	}
	r := testRewriter(t, fn)

	if _, _, err := r.Audit(testPost(), nil); err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if !strings.Contains(captured, "No sitemap pages available.") {
		t.Error("audit prompt should state when no sitemap pages exist")
	}
	if !strings.Contains(captured, fmt.Sprintf("%d", testPost().WordCount)) {
		t.Error("audit prompt missing the current word count")
	}
}
