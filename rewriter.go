package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

// promptFunc issues one model call and returns the completion text plus raw
// token usage. It is a field on Rewriter so tests can stub the API.
type promptFunc func(systemPrompt, userPrompt, schema string, settings types.RequestSettings) (string, Usage, error)

// Rewriter runs the two-pass audit/rewrite orchestration against the model.
type Rewriter struct {
	config *Config
	apiKey string
	prompt promptFunc
}

// NewRewriter creates a rewriter. The API key is held in memory only.
func NewRewriter(apiKey string, config *Config) (*Rewriter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key required")
	}
	r := &Rewriter{config: config, apiKey: apiKey}
	r.prompt = r.callAnthropic
	return r, nil
}

func (r *Rewriter) callAnthropic(systemPrompt, userPrompt, schema string, settings types.RequestSettings) (string, Usage, error) {
	response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, schema, r.apiKey, settings)
	if err != nil {
		return "", Usage{}, err
	}
	if len(response.Content) == 0 {
		return "", Usage{}, fmt.Errorf("no content in response")
	}
	usage := Usage{
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}
	return response.Content[0].Text, usage, nil
}

// callModel runs the seam and applies the configured pricing to the usage.
func (r *Rewriter) callModel(pass, systemPrompt, userPrompt, schema string, settings types.RequestSettings) (string, Usage, error) {
	text, usage, err := r.prompt(systemPrompt, userPrompt, schema, settings)
	if err != nil {
		return "", Usage{}, fmt.Errorf("%s pass: %w", pass, err)
	}
	usage.CostUSD = r.config.Cost(settings.Model, usage.InputTokens, usage.OutputTokens)
	return text, usage, nil
}

// Audit runs the first pass: diagnose why the post may be poorly indexed.
// A response that is not valid JSON still produces a usable audit with the
// raw text attached.
func (r *Rewriter) Audit(post *Post, pages []PageLink) (*Audit, Usage, error) {
	log.Printf("  → Auditing (pass 1 of 2)...")

	tpl := r.config.GetAuditPrompt()
	for _, v := range []string{"{{.Title}}", "{{.WordCount}}", "{{.BodyText}}", "{{.SitePages}}"} {
		if !strings.Contains(tpl, v) {
			return nil, Usage{}, fmt.Errorf("audit prompt template must contain %s variable", v)
		}
	}
	prompt := strings.NewReplacer(
		"{{.Title}}", orUntitled(post.Title),
		"{{.WordCount}}", strconv.Itoa(post.WordCount),
		"{{.BodyText}}", truncateContent(post.BodyText, r.config.Settings.Prompts.ContentMaxChars),
		"{{.SitePages}}", formatSitePages(pages, r.config.Settings.Prompts.MaxSitePages),
	).Replace(tpl)

	settings := types.RequestSettings{
		Model:       r.config.Settings.Agents.Auditor.Model,
		MaxTokens:   r.config.Settings.Agents.Auditor.MaxTokens,
		Temperature: r.config.Settings.Agents.Auditor.Temperature,
	}
	text, usage, err := r.callModel("audit", "", prompt, "", settings)
	if err != nil {
		return nil, Usage{}, err
	}

	audit := &Audit{}
	raw := stripCodeFences(text)
	if err := json.Unmarshal([]byte(raw), audit); err != nil {
		// Keep going with a neutral audit; the raw text still informs pass 2.
		audit = &Audit{
			OverallWordCount: post.WordCount,
			Verdict:          VerdictAverage,
			ParseError:       truncateContent(raw, 500),
		}
	}

	log.Printf("  ✓ Audit done — verdict: %s, %d thin section(s), %d link gap(s)",
		audit.Verdict, len(audit.ThinSections), len(audit.MissingInternalLinks))
	return audit, usage, nil
}

// Rewrite runs the second pass: produce the replacement markdown given the
// audit and the internal link candidates.
func (r *Rewriter) Rewrite(post *Post, audit *Audit, pages []PageLink) (string, Usage, error) {
	log.Printf("  → Rewriting (pass 2 of 2)...")

	tpl := r.config.GetRewritePrompt()
	for _, v := range []string{"{{.Title}}", "{{.Audit}}", "{{.InternalLinks}}", "{{.SitePages}}", "{{.BodyText}}"} {
		if !strings.Contains(tpl, v) {
			return "", Usage{}, fmt.Errorf("rewrite prompt template must contain %s variable", v)
		}
	}

	auditJSON, err := json.MarshalIndent(audit, "", "  ")
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling audit: %w", err)
	}

	cfg := r.config.Settings.Prompts
	selected := selectInternalLinks(post, pages, cfg.LinkCountMax)

	prompt := strings.NewReplacer(
		"{{.Title}}", orUntitled(post.Title),
		"{{.Audit}}", string(auditJSON),
		"{{.InternalLinks}}", formatSitePages(selected, 0),
		"{{.SitePages}}", formatSitePages(pages, cfg.MaxSitePages),
		"{{.BodyText}}", truncateContent(post.BodyText, cfg.ContentMaxChars),
		"{{.MinWords}}", strconv.Itoa(cfg.MinWordCount),
		"{{.LinkMin}}", strconv.Itoa(cfg.LinkCountMin),
		"{{.LinkMax}}", strconv.Itoa(cfg.LinkCountMax),
		"{{.FreshnessYear}}", strconv.Itoa(cfg.FreshnessYear),
	).Replace(tpl)

	settings := types.RequestSettings{
		Model:       r.config.Settings.Agents.Writer.Model,
		MaxTokens:   r.config.Settings.Agents.Writer.MaxTokens,
		Temperature: r.config.Settings.Agents.Writer.Temperature,
	}
	text, usage, err := r.callModel("rewrite", "", prompt, "", settings)
	if err != nil {
		return "", Usage{}, err
	}

	log.Printf("  ✓ Rewrite completed")
	return strings.TrimSpace(text), usage, nil
}

// Compose builds the terminal document, flagging rewrites that fall short
// of the configured minimum instead of silently accepting them.
func (r *Rewriter) Compose(post *Post, audit *Audit, markdown string, cost Usage) *RewrittenPost {
	wordCount := countWords(markdown)
	internal, external := countMarkdownLinks(markdown, hostOf(post.URL))
	return &RewrittenPost{
		SourceURL:     post.URL,
		Slug:          post.Slug,
		Title:         post.Title,
		Markdown:      markdown,
		WordCount:     wordCount,
		InternalLinks: internal,
		ExternalLinks: external,
		BelowMinimum:  wordCount < r.config.Settings.Prompts.MinWordCount,
		Audit:         audit,
		Cost:          cost,
	}
}

var markdownLink = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)`)

// countMarkdownLinks tallies the links in rewritten markdown, split into
// internal (same host or root-relative) and external.
func countMarkdownLinks(markdown, host string) (internal, external int) {
	for _, m := range markdownLink.FindAllStringSubmatch(markdown, -1) {
		href := m[1]
		switch {
		case strings.HasPrefix(href, "/"):
			internal++
		case host != "" && strings.Contains(href, host):
			internal++
		case strings.HasPrefix(href, "http"):
			external++
		}
	}
	return internal, external
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// selectInternalLinks picks up to max pages for the rewrite prompt,
// ranked by word overlap between each page title and the post's title and
// headings. The sort is stable over sitemap order, so the selection is
// deterministic. The post's own page is excluded.
func selectInternalLinks(post *Post, pages []PageLink, max int) []PageLink {
	if max <= 0 || len(pages) == 0 {
		return nil
	}

	wanted := make(map[string]bool)
	for _, w := range tokenize(post.Title) {
		wanted[w] = true
	}
	for _, h := range post.Headings {
		for _, w := range tokenize(h.Text) {
			wanted[w] = true
		}
	}

	type scored struct {
		page  PageLink
		score int
	}
	ranked := make([]scored, 0, len(pages))
	for _, page := range pages {
		if page.URL == post.URL {
			continue
		}
		score := 0
		for _, w := range tokenize(page.Title) {
			if len(w) > 3 && wanted[w] {
				score++
			}
		}
		ranked = append(ranked, scored{page: page, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > max {
		ranked = ranked[:max]
	}

	out := make([]PageLink, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.page)
	}
	return out
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit, so "Crawling?" and "crawling" compare equal.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// formatSitePages renders pages as "- URL | Title" lines for prompt
// injection, capped so large sitemaps don't overflow the context.
func formatSitePages(pages []PageLink, max int) string {
	if len(pages) == 0 {
		return "No sitemap pages available."
	}
	if max > 0 && len(pages) > max {
		pages = pages[:max]
	}
	var b strings.Builder
	for i, page := range pages {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s | %s", page.URL, page.Title)
	}
	return b.String()
}

// stripCodeFences removes a wrapping markdown code fence, if present.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	} else {
		text = text[3:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// truncateContent limits content to maxChars, marking the cut. The cut
// backs up to a rune boundary so multi-byte characters stay intact.
func truncateContent(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	for maxChars > 0 && !utf8.RuneStart(content[maxChars]) {
		maxChars--
	}
	return content[:maxChars] + "..."
}

func orUntitled(title string) string {
	if title == "" {
		return "Untitled"
	}
	return title
}
