package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var (
	apiKey            string
	domain            string
	csvPath           string
	outputDir         string
	auditPromptPath   string
	rewritePromptPath string
	settingsPath      string
	debugMode         bool
)

var rootCmd = &cobra.Command{
	Use:   "blog-revival [urls...]",
	Short: "Rewrite unindexed blog posts with a two-pass AI audit",
	Long: `Fetches blog posts flagged as "Crawled - currently not indexed", audits
each one for structural issues, and rewrites it into snippet-friendly
markdown with internal links and citations.

URLs come from a Search Console CSV export (--csv) or as arguments.`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// Get API key
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			log.Fatal("API key required: use --api-key flag or ANTHROPIC_API_KEY environment variable")
		}
		if domain == "" {
			log.Fatal("Domain required: use --domain to point at the site root")
		}

		// Resolve URL list
		var urls []string
		if csvPath != "" {
			loaded, err := LoadURLsFromCSV(csvPath)
			if err != nil {
				log.Fatalf("Loading CSV: %v", err)
			}
			urls = loaded
			log.Printf("Loaded %d URLs from %s", len(urls), csvPath)
		}
		for _, arg := range args {
			if strings.HasPrefix(arg, "http") {
				urls = append(urls, strings.TrimSpace(arg))
			}
		}
		if len(urls) == 0 {
			log.Fatal("No URLs to process: pass a --csv export or URLs as arguments")
		}

		// Build config overrides
		overrides := &ConfigOverrides{}
		if auditPromptPath != "" {
			overrides.AuditPromptPath = &auditPromptPath
		}
		if rewritePromptPath != "" {
			overrides.RewritePromptPath = &rewritePromptPath
		}
		if settingsPath != "" {
			overrides.SettingsPath = &settingsPath
		}

		processor, err := NewBatchProcessor(apiKey, domain, overrides)
		if err != nil {
			log.Fatalf("Failed to create processor: %v", err)
		}
		if outputDir != "" {
			processor.config.Settings.OutputDirectory = outputDir
		}
		if debugMode {
			SetDebugMode(true)
		}

		// Interrupt aborts between URLs; completed documents are kept.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		summary, runErr := processor.Run(ctx, urls)
		fmt.Println(RenderSummary(summary))
		if runErr != nil {
			log.Fatalf("Run aborted: %v", runErr)
		}
	},
}

func init() {
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key")
	rootCmd.Flags().StringVar(&domain, "domain", "", "Site root URL, used for sitemap discovery")
	rootCmd.Flags().StringVar(&csvPath, "csv", "", "Path to a Search Console CSV export")
	rootCmd.Flags().StringVar(&outputDir, "output", "", "Directory for rewritten markdown files")
	rootCmd.Flags().StringVar(&auditPromptPath, "audit-prompt", "", "Path to custom audit prompt file")
	rootCmd.Flags().StringVar(&rewritePromptPath, "rewrite-prompt", "", "Path to custom rewrite prompt file")
	rootCmd.Flags().StringVar(&settingsPath, "settings", "", "Path to custom settings file")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
