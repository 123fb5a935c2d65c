package main

// FetchStatus classifies the outcome of fetching a single post URL.
type FetchStatus string

const (
	FetchOK      FetchStatus = "ok"
	FetchBlocked FetchStatus = "blocked"
	FetchFailed  FetchStatus = "error"
)

// Heading is one h2/h3 heading found in a post body.
type Heading struct {
	Level string
	Text  string
}

// Link is an anchor found in a post body.
type Link struct {
	Text string
	Href string
}

// Post is the result of fetching a single blog post. A failed fetch still
// produces a Post, with Status and Err describing what went wrong.
type Post struct {
	URL           string
	Slug          string
	Title         string
	Status        FetchStatus
	Err           error
	Headings      []Heading
	InternalLinks []Link
	ExternalLinks []Link
	BodyText      string
	WordCount     int
}

// PageLink is one internal page discovered from the site's sitemap.
type PageLink struct {
	URL   string
	Slug  string
	Title string
}

// Audit verdict values.
const (
	VerdictThin    = "thin"
	VerdictAverage = "average"
	VerdictGood    = "good"
)

// Audit is the structured result of the first model pass. If the model
// response could not be parsed as JSON, ParseError holds the raw text and
// the remaining fields are neutral defaults.
type Audit struct {
	ThinSections         []string `json:"thin_sections"`
	OutdatedClaims       []string `json:"outdated_claims"`
	MissingInternalLinks []string `json:"missing_internal_links"`
	MissingExternalLinks []string `json:"missing_external_links"`
	OverallWordCount     int      `json:"overall_word_count"`
	Verdict              string   `json:"verdict"`
	ParseError           string   `json:"parse_error,omitempty"`
}

// Usage is the token usage and derived cost of one or more model calls.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Add returns the sum of two usage records.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		CostUSD:      u.CostUSD + o.CostUSD,
	}
}

// RewrittenPost is the terminal artifact for one successfully rewritten URL.
type RewrittenPost struct {
	SourceURL     string
	Slug          string
	Title         string
	Markdown      string
	WordCount     int
	InternalLinks int
	ExternalLinks int
	BelowMinimum  bool
	Audit         *Audit
	Cost          Usage
}

// FailureReason identifies why a URL failed to produce a document.
type FailureReason string

const (
	ReasonFetchBlocked  FailureReason = "fetch-blocked"
	ReasonFetchError    FailureReason = "fetch-error"
	ReasonAuditFailed   FailureReason = "audit-failed"
	ReasonRewriteFailed FailureReason = "rewrite-failed"
	ReasonSaveFailed    FailureReason = "save-failed"
)

// ProcessResult is the recorded outcome for a single target URL. Cost holds
// whatever usage the URL incurred, including calls made before a failure.
type ProcessResult struct {
	URL         string
	Success     bool
	Reason      FailureReason
	Err         error
	Document    *RewrittenPost
	Filename    string
	WordsBefore int
	Cost        Usage
}

// RunSummary aggregates per-URL outcomes and the running cost for one batch.
type RunSummary struct {
	Results    []ProcessResult
	TotalUsage Usage
}

// Succeeded counts results that produced a document.
func (rs *RunSummary) Succeeded() int {
	n := 0
	for _, r := range rs.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failed counts results that did not produce a document.
func (rs *RunSummary) Failed() int {
	return len(rs.Results) - rs.Succeeded()
}
