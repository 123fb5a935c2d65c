package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// gscURLColumns are the header names a Search Console export may use for
// the page URL column.
var gscURLColumns = []string{"Top pages", "URL", "url", "Page", "page", "Address", "address"}

// BatchProcessor drives the fetch → audit → rewrite pipeline across a list
// of target URLs. All per-run state (cached sitemap, running cost) lives
// here and is discarded with the processor.
type BatchProcessor struct {
	fetcher  *PostFetcher
	rewriter *Rewriter
	locator  *SitemapLocator
	config   *Config

	domain        string
	sitePages     []PageLink
	sitemapLoaded bool

	// OnResult, when set, is called after each URL completes with the
	// running summary, so callers can observe progress and cost.
	OnResult func(result ProcessResult, summary *RunSummary)
}

// NewBatchProcessor creates a processor for one run against one domain.
func NewBatchProcessor(apiKey, domain string, overrides *ConfigOverrides) (*BatchProcessor, error) {
	config, err := NewConfig(overrides)
	if err != nil {
		return nil, err
	}

	rewriter, err := NewRewriter(apiKey, config)
	if err != nil {
		return nil, err
	}

	return &BatchProcessor{
		fetcher:  NewPostFetcher(),
		rewriter: rewriter,
		locator:  NewSitemapLocator(),
		config:   config,
		domain:   normalizeDomain(domain),
	}, nil
}

// sitemap returns the run's page set, located on first use and cached for
// the rest of the run.
func (bp *BatchProcessor) sitemap() []PageLink {
	if !bp.sitemapLoaded {
		log.Printf("→ Locating sitemap for %s", bp.domain)
		bp.sitePages = bp.locator.Locate(bp.domain)
		bp.sitemapLoaded = true
		if len(bp.sitePages) == 0 {
			log.Printf("✗ No sitemap found — internal link suggestions will be limited")
		} else {
			log.Printf("✓ Found %d pages", len(bp.sitePages))
		}
	}
	return bp.sitePages
}

// Run processes every target URL in input order, recording exactly one
// outcome per URL. Per-URL failures never abort the batch. Cancellation is
// honored between URLs; completed results stay in the returned summary.
func (bp *BatchProcessor) Run(ctx context.Context, urls []string) (*RunSummary, error) {
	summary := &RunSummary{}

	log.Printf("Processing %d post(s)...", len(urls))
	for i, targetURL := range urls {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		log.Printf("[%d/%d] %s", i+1, len(urls), targetURL)
		result := bp.processURL(targetURL)
		summary.Results = append(summary.Results, result)
		summary.TotalUsage = summary.TotalUsage.Add(result.Cost)

		if bp.OnResult != nil {
			bp.OnResult(result, summary)
		}
	}

	log.Printf("Done: %d succeeded, %d failed, $%.4f total", summary.Succeeded(), summary.Failed(), summary.TotalUsage.CostUSD)
	return summary, nil
}

// processURL runs the full pipeline for one URL and converts every failure
// into a recorded outcome.
func (bp *BatchProcessor) processURL(targetURL string) ProcessResult {
	result := ProcessResult{URL: targetURL}

	post := bp.fetcher.Fetch(targetURL)
	if post.Status != FetchOK {
		result.Reason = ReasonFetchError
		if post.Status == FetchBlocked {
			result.Reason = ReasonFetchBlocked
		}
		result.Err = post.Err
		log.Printf("✗ Fetch failed (%s): %v", result.Reason, post.Err)
		return result
	}
	result.WordsBefore = post.WordCount
	log.Printf("  ✓ Fetched — %d words, %d headings, %d internal / %d external links",
		post.WordCount, len(post.Headings), len(post.InternalLinks), len(post.ExternalLinks))

	pages := bp.sitemap()

	audit, usage, err := bp.rewriter.Audit(post, pages)
	result.Cost = result.Cost.Add(usage)
	if err != nil {
		result.Reason = ReasonAuditFailed
		result.Err = err
		log.Printf("✗ Audit failed: %v", err)
		return result
	}

	markdown, usage, err := bp.rewriter.Rewrite(post, audit, pages)
	result.Cost = result.Cost.Add(usage)
	if err != nil {
		result.Reason = ReasonRewriteFailed
		result.Err = err
		log.Printf("✗ Rewrite failed: %v", err)
		return result
	}

	doc := bp.rewriter.Compose(post, audit, markdown, result.Cost)
	if doc.BelowMinimum {
		log.Printf("  ⚠ Rewrite is %d words, below the %d minimum",
			doc.WordCount, bp.config.Settings.Prompts.MinWordCount)
	}

	filename, err := bp.saveDocument(doc)
	if err != nil {
		result.Reason = ReasonSaveFailed
		result.Err = err
		log.Printf("✗ Save failed: %v", err)
		return result
	}

	result.Document = doc
	result.Filename = filename
	result.Success = true
	log.Printf("✓ Saved: %s (%d → %d words, %d internal / %d external links)",
		filename, post.WordCount, doc.WordCount, doc.InternalLinks, doc.ExternalLinks)
	return result
}

// saveDocument writes the rewritten markdown to the output directory.
func (bp *BatchProcessor) saveDocument(doc *RewrittenPost) (string, error) {
	dir := bp.config.Settings.OutputDirectory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	filename := filepath.Join(dir, doc.Slug+"-rewritten.md")
	if err := os.WriteFile(filename, []byte(doc.Markdown), 0644); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return filename, nil
}

// LoadURLsFromCSV reads a Search Console CSV export from disk and returns
// the URL column values.
func LoadURLsFromCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()
	return ParseGSCCSV(f)
}

// ParseGSCCSV extracts post URLs from a Search Console export. It looks
// for a known URL column header first; failing that, it sniffs for a
// column whose sample values start with http. All other columns are
// ignored.
func ParseGSCCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	header := records[0]
	col := -1
	for _, name := range gscURLColumns {
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				col = i
				break
			}
		}
		if col >= 0 {
			break
		}
	}
	if col < 0 {
		col = sniffURLColumn(records)
	}
	if col < 0 {
		return nil, fmt.Errorf("could not find a URL column (columns: %s)", strings.Join(header, ", "))
	}

	var urls []string
	for _, row := range records[1:] {
		if col >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[col])
		if strings.HasPrefix(value, "http") {
			urls = append(urls, value)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("column %q found but contained no URLs starting with http", strings.TrimSpace(header[col]))
	}
	return urls, nil
}

// sniffURLColumn finds the first column whose first few non-empty values
// look like URLs.
func sniffURLColumn(records [][]string) int {
	if len(records) < 2 {
		return -1
	}
	for col := 0; col < len(records[0]); col++ {
		hits, checked := 0, 0
		for _, row := range records[1:] {
			if col >= len(row) || strings.TrimSpace(row[col]) == "" {
				continue
			}
			checked++
			if strings.HasPrefix(strings.TrimSpace(row[col]), "http") {
				hits++
			}
			if checked == 5 {
				break
			}
		}
		if hits >= 3 || (hits > 0 && hits == checked) {
			return col
		}
	}
	return -1
}
