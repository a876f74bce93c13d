package strategy

import (
	"strings"

	"stratval/domain/core"
)

// Status is the lifecycle bucket a candidate lives in on disk.
type Status string

const (
	StatusPending     Status = "pending"
	StatusValidated   Status = "validated"
	StatusInvalidated Status = "invalidated"
	StatusBlocked     Status = "blocked"
)

// AllStatuses in bucket-scan order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusValidated, StatusInvalidated, StatusBlocked}
}

// Universe describes the instrument set a candidate trades.
type Universe struct {
	Type    string   `yaml:"type,omitempty" json:"type,omitempty"`
	Symbols []string `yaml:"symbols,omitempty" json:"symbols,omitempty"`
	Filters []string `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// Entry holds the candidate's entry rule description.
type Entry struct {
	Type        string   `yaml:"type,omitempty" json:"type,omitempty"`
	Signals     []string `yaml:"signals,omitempty" json:"signals,omitempty"`
	Technical   []string `yaml:"technical,omitempty" json:"technical,omitempty"`
	Fundamental []string `yaml:"fundamental,omitempty" json:"fundamental,omitempty"`
}

// ExitPath is one way a position can close.
type ExitPath struct {
	Type      string `yaml:"type,omitempty" json:"type,omitempty"`
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Exit holds all exit paths for a candidate.
type Exit struct {
	Paths []ExitPath `yaml:"paths,omitempty" json:"paths,omitempty"`
}

// Sizing describes position sizing.
type Sizing struct {
	Method string `yaml:"method,omitempty" json:"method,omitempty"`
	Value  string `yaml:"value,omitempty" json:"value,omitempty"`
}

// Position wraps sizing.
type Position struct {
	Sizing Sizing `yaml:"sizing,omitempty" json:"sizing,omitempty"`
}

// Tags carry free-form classification, including the hypothesis type
// used for template selection.
type Tags struct {
	HypothesisType string   `yaml:"hypothesis_type,omitempty" json:"hypothesis_type,omitempty"`
	Labels         []string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// DataRequirements names the datasets a candidate needs.
type DataRequirements struct {
	Primary   []string `yaml:"primary,omitempty" json:"primary,omitempty"`
	Secondary []string `yaml:"secondary,omitempty" json:"secondary,omitempty"`
}

// Hypothesis records the economic rationale behind the candidate.
type Hypothesis struct {
	Summary string `yaml:"summary,omitempty" json:"summary,omitempty"`
	Edge    Edge   `yaml:"edge,omitempty" json:"edge,omitempty"`
}

// Edge explains why the edge should exist.
type Edge struct {
	WhyExists string `yaml:"why_exists,omitempty" json:"why_exists,omitempty"`
}

// Candidate is a strategy candidate as stored in its YAML file.
type Candidate struct {
	ID               core.StrategyID   `yaml:"id" json:"id"`
	Name             string            `yaml:"name,omitempty" json:"name,omitempty"`
	Description      string            `yaml:"description,omitempty" json:"description,omitempty"`
	Status           Status            `yaml:"status,omitempty" json:"status,omitempty"`
	Tags             Tags              `yaml:"tags,omitempty" json:"tags,omitempty"`
	Universe         Universe          `yaml:"universe,omitempty" json:"universe,omitempty"`
	Entry            Entry             `yaml:"entry,omitempty" json:"entry,omitempty"`
	Exit             Exit              `yaml:"exit,omitempty" json:"exit,omitempty"`
	Position         Position          `yaml:"position,omitempty" json:"position,omitempty"`
	Parameters       map[string]any    `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	DataRequirements DataRequirements  `yaml:"data_requirements,omitempty" json:"data_requirements,omitempty"`
	Hypothesis       Hypothesis        `yaml:"hypothesis,omitempty" json:"hypothesis,omitempty"`
	Metadata         map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// StrategyType returns the normalized hypothesis type used for template
// selection: lowercased, hyphens and spaces folded to underscores.
func (c *Candidate) StrategyType() string {
	t := strings.ToLower(strings.TrimSpace(c.Tags.HypothesisType))
	t = strings.ReplaceAll(t, "-", "_")
	t = strings.ReplaceAll(t, " ", "_")
	return t
}

// PrimaryData returns the primary data requirements, never nil.
func (c *Candidate) PrimaryData() []string {
	if c.DataRequirements.Primary == nil {
		return []string{}
	}
	return c.DataRequirements.Primary
}

// HasParameters reports whether the candidate carries any tunable
// parameters. Template rendering requires at least one.
func (c *Candidate) HasParameters() bool {
	return len(c.Parameters) > 0
}

// SymbolsOrDefault returns the universe symbols, falling back to SPY
// when the candidate names none.
func (c *Candidate) SymbolsOrDefault() []string {
	if len(c.Universe.Symbols) > 0 {
		return c.Universe.Symbols
	}
	return []string{"SPY"}
}
