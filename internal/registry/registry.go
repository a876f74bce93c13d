package registry

import (
	"context"
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"stratval/domain/strategy"
	"stratval/domain/validation"
	"stratval/internal/errors"
	"stratval/internal/logging"
)

// Tier ranks a data source by trustworthiness. Lower rank wins when a
// requirement matches more than one entry.
type Tier string

const (
	TierNative       Tier = "native"
	TierCloudStore   Tier = "cloud-object-store"
	TierPurchased    Tier = "purchased"
	TierCurated      Tier = "curated"
	TierExperimental Tier = "experimental"
)

var tierRank = map[Tier]int{
	TierNative:       0,
	TierCloudStore:   1,
	TierPurchased:    2,
	TierCurated:      3,
	TierExperimental: 4,
}

// Entry is one known dataset in the registry file.
type Entry struct {
	Name        string `json:"name"`
	Tier        Tier   `json:"tier"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
}

// specialNatives are requirement names the engine serves without any
// registry entry.
var specialNatives = map[string]bool{
	"risk_free_rate":  true,
	"treasury_yields": true,
	"options_data":    true,
	"futures_data":    true,
	"forex_data":      true,
	"crypto_data":     true,
}

// tickerSuffixes mark a requirement as per-ticker price data.
var tickerSuffixes = []string{"_prices", "_data", "_ohlcv"}

var tickerPattern = regexp.MustCompile(`^[a-z0-9]{1,6}$`)

// Resolver maps candidate data requirements onto known data sources.
type Resolver struct {
	entries map[string][]Entry
	log     zerolog.Logger
}

// New builds a resolver over a registry file. A missing file yields an
// empty registry: the pattern recognizer and special natives still
// apply.
func New(registryPath string) (*Resolver, error) {
	r := &Resolver{
		entries: map[string][]Entry{},
		log:     logging.For("registry"),
	}
	if registryPath == "" {
		return r, nil
	}

	data, err := os.ReadFile(registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, errors.Wrap(err, "failed to read data registry")
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse data registry")
	}
	for _, e := range entries {
		key := Normalize(e.Name)
		r.entries[key] = append(r.entries[key], e)
	}
	return r, nil
}

// Normalize lowercases a requirement and folds hyphens and spaces to
// underscores.
func Normalize(requirement string) string {
	s := strings.ToLower(strings.TrimSpace(requirement))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// Resolve checks every primary data requirement of the candidate.
// Requirements resolve, in order of preference, against the registry
// (best tier wins), the special native set, and the per-ticker price
// pattern.
func (r *Resolver) Resolve(ctx context.Context, cand *strategy.Candidate) (*validation.DataAudit, error) {
	audit := &validation.DataAudit{
		StrategyID:  cand.ID,
		AllResolved: true,
	}

	for _, req := range cand.PrimaryData() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := r.resolveOne(req)
		if !res.Resolved {
			audit.AllResolved = false
			r.log.Warn().Str("strategy", string(cand.ID)).
				Str("requirement", req).Msg("data requirement unresolved")
		}
		audit.Resolutions = append(audit.Resolutions, res)
	}
	return audit, nil
}

func (r *Resolver) resolveOne(requirement string) validation.DataResolution {
	key := Normalize(requirement)
	res := validation.DataResolution{Requirement: requirement}

	if matches, ok := r.entries[key]; ok && len(matches) > 0 {
		best := bestTier(matches)
		res.Resolved = true
		res.Source = best.Source
		res.Tier = string(best.Tier)
		res.Detail = "registry match"
		return res
	}

	if specialNatives[key] {
		res.Resolved = true
		res.Source = "engine"
		res.Tier = string(TierNative)
		res.Detail = "native dataset"
		return res
	}

	if ticker, ok := recognizeTicker(key); ok {
		res.Resolved = true
		res.Source = "engine"
		res.Tier = string(TierNative)
		res.Detail = "equity prices for " + strings.ToUpper(ticker)
		return res
	}

	res.Detail = "no registry entry, native dataset, or ticker pattern matched"
	return res
}

// recognizeTicker strips a known price suffix and accepts the stem as
// a ticker when it is 1-6 alphanumeric characters.
func recognizeTicker(key string) (string, bool) {
	for _, suffix := range tickerSuffixes {
		stem, found := strings.CutSuffix(key, suffix)
		if !found || stem == "" {
			continue
		}
		if tickerPattern.MatchString(stem) {
			return stem, true
		}
	}
	return "", false
}

func bestTier(entries []Entry) Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank(sorted[i].Tier) < rank(sorted[j].Tier)
	})
	return sorted[0]
}

func rank(t Tier) int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return len(tierRank)
}
