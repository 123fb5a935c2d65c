package main

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".blog-revival"

// Embedded configuration files
//
//go:embed config/audit-prompt.md
var defaultAuditPrompt string

//go:embed config/rewrite-prompt.md
var defaultRewritePrompt string

//go:embed config/settings.yaml
var defaultSettings string

// ConfigOverrides holds file path overrides for embedded configurations
type ConfigOverrides struct {
	AuditPromptPath   *string
	RewritePromptPath *string
	SettingsPath      *string
}

// AgentSettings configures one model pass.
type AgentSettings struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Pricing is USD per million tokens for one model.
type Pricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

// PromptSettings are the parameters injected into the prompt templates.
// They live in settings so behavior changes are data changes.
type PromptSettings struct {
	MinWordCount    int `yaml:"min_word_count"`
	LinkCountMin    int `yaml:"link_count_min"`
	LinkCountMax    int `yaml:"link_count_max"`
	FreshnessYear   int `yaml:"freshness_year"`
	MaxSitePages    int `yaml:"max_site_pages"`
	ContentMaxChars int `yaml:"content_max_chars"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	OutputDirectory string `yaml:"output_directory"`
	Agents          struct {
		Auditor AgentSettings `yaml:"auditor"`
		Writer  AgentSettings `yaml:"writer"`
	} `yaml:"agents"`
	Prompts PromptSettings     `yaml:"prompts"`
	Pricing map[string]Pricing `yaml:"pricing"`
}

// Config holds settings and overrides
type Config struct {
	Settings  *Settings
	Overrides *ConfigOverrides
}

// NewConfig creates a new Config with settings and overrides
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	if err := ensureConfigExists(); err != nil {
		return nil, fmt.Errorf("ensuring config files exist: %w", err)
	}

	var settings *Settings
	var err error
	if overrides != nil && overrides.SettingsPath != nil {
		// Explicit settings file must exist
		settings, err = loadSettingsRequired(*overrides.SettingsPath)
	} else {
		settings, err = loadSettings(filepath.Join(defaultConfigDir, "settings.yaml"))
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	applySettingsDefaults(settings)

	return &Config{
		Settings:  settings,
		Overrides: overrides,
	}, nil
}

// GetAuditPrompt returns the audit prompt template (from override file or embedded)
func (c *Config) GetAuditPrompt() string {
	if c.Overrides != nil && c.Overrides.AuditPromptPath != nil {
		if content, err := os.ReadFile(*c.Overrides.AuditPromptPath); err == nil {
			return string(content)
		}
	}
	return defaultAuditPrompt
}

// GetRewritePrompt returns the rewrite prompt template (from override file or embedded)
func (c *Config) GetRewritePrompt() string {
	if c.Overrides != nil && c.Overrides.RewritePromptPath != nil {
		if content, err := os.ReadFile(*c.Overrides.RewritePromptPath); err == nil {
			return string(content)
		}
	}
	return defaultRewritePrompt
}

// Cost converts token counts to USD using the configured rate table. Models
// without an explicit entry fall back to the "default" rates.
func (c *Config) Cost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := c.Settings.Pricing[model]
	if !ok {
		pricing = c.Settings.Pricing["default"]
	}
	return float64(inputTokens)*pricing.InputPerMTok/1e6 +
		float64(outputTokens)*pricing.OutputPerMTok/1e6
}

// loadSettings loads settings from a YAML file with fallback to embedded defaults
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		// Fall back to the embedded defaults if the file doesn't exist
		data = []byte(defaultSettings)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	return &settings, nil
}

// loadSettingsRequired loads settings from a YAML file, failing if it doesn't exist
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, err
	}

	return &settings, nil
}

// applySettingsDefaults fills zero-valued knobs so a sparse settings file
// still produces a working configuration.
func applySettingsDefaults(s *Settings) {
	if s.OutputDirectory == "" {
		s.OutputDirectory = "output"
	}
	if s.Agents.Auditor.MaxTokens == 0 {
		s.Agents.Auditor.MaxTokens = 1024
	}
	if s.Agents.Writer.MaxTokens == 0 {
		s.Agents.Writer.MaxTokens = 4096
	}
	if s.Prompts.MinWordCount == 0 {
		s.Prompts.MinWordCount = 1200
	}
	if s.Prompts.LinkCountMin == 0 {
		s.Prompts.LinkCountMin = 3
	}
	if s.Prompts.LinkCountMax == 0 {
		s.Prompts.LinkCountMax = 5
	}
	if s.Prompts.LinkCountMax < s.Prompts.LinkCountMin {
		log.Printf("Warning: link_count_max %d is below link_count_min %d, raising it", s.Prompts.LinkCountMax, s.Prompts.LinkCountMin)
		s.Prompts.LinkCountMax = s.Prompts.LinkCountMin
	}
	if s.Prompts.FreshnessYear == 0 {
		s.Prompts.FreshnessYear = 2026
	}
	if s.Prompts.MaxSitePages == 0 {
		s.Prompts.MaxSitePages = 100
	}
	if s.Prompts.ContentMaxChars == 0 {
		s.Prompts.ContentMaxChars = 8000
	}
	if s.Pricing == nil {
		s.Pricing = map[string]Pricing{}
	}
	if _, ok := s.Pricing["default"]; !ok {
		s.Pricing["default"] = Pricing{InputPerMTok: 3.00, OutputPerMTok: 15.00}
	}
}

// ensureConfigExists creates the config directory and writes settings.yaml if needed
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write settings.yaml - this should be customized by users
	settingsFile := filepath.Join(defaultConfigDir, "settings.yaml")
	if _, err := os.Stat(settingsFile); os.IsNotExist(err) {
		if err := os.WriteFile(settingsFile, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing settings.yaml: %w", err)
		}
	}

	return nil
}
