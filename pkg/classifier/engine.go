// Package classifier diagnoses error messages with a weighted rule table
// and context-aware scoring.
package classifier

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// Scoring thresholds and adjustments.
const (
	legacyRuntimeBelow   = "8.0"
	legacyFrameworkBelow = "6.0"
	modernRuntimeFrom    = "8.2"
	modernFrameworkFrom  = "6.4"

	bonusLegacyRuntime   = 15
	bonusLegacyFramework = 5
	bonusMultisite       = 10
	bonusREST            = 10
	bonusAdminPermission = 8
	bonusCulprit         = 10
	bonusSpike           = 5
	penaltyModernStack   = 5

	// MaxConfidence is the ceiling applied to adjusted weights.
	MaxConfidence = 100
)

// UnclassifiedCategory is returned when no rule matches.
const UnclassifiedCategory = "Unclassified"

const unclassifiedSuggestion = "Review stack trace and recent changes."

// Result is a diagnosis for a single message.
type Result struct {
	Category   string   `json:"category"`
	Severity   string   `json:"severity"`
	Confidence int      `json:"confidence"`
	Tags       []string `json:"tags"`
	Suggestion string   `json:"suggestion"`
}

// Unclassified returns the sentinel result for messages no rule matches.
func Unclassified() Result {
	return Result{
		Category:   UnclassifiedCategory,
		Severity:   SeverityUnknown,
		Confidence: 0,
		Tags:       []string{},
		Suggestion: unclassifiedSuggestion,
	}
}

// Option customises the rule table an engine is built with.
type Option func(rules []Rule) []Rule

// WithRules replaces the rule table.
func WithRules(rules []Rule) Option {
	return func([]Rule) []Rule {
		return slices.Clone(rules)
	}
}

// WithExtraRules appends rules after the current table.
func WithExtraRules(rules ...Rule) Option {
	return func(current []Rule) []Rule {
		return append(current, rules...)
	}
}

// WithRuleFilter hands the current table to fn and uses whatever it returns.
func WithRuleFilter(fn func([]Rule) []Rule) Option {
	return func(current []Rule) []Rule {
		return fn(current)
	}
}

type compiledRule struct {
	Rule
	re         *regexp.Regexp
	lowPattern string
}

func (r *compiledRule) matches(message, lowMessage string) bool {
	if r.Type == MatchRegex {
		return r.re.MatchString(message)
	}
	return strings.Contains(lowMessage, r.lowPattern)
}

// Engine classifies messages against an immutable, compiled rule table.
// It is safe for concurrent use.
type Engine struct {
	rules []compiledRule
}

// New builds an engine from the default rules with the given options applied in order.
func New(opts ...Option) (*Engine, error) {
	rules := DefaultRules()
	for _, opt := range opts {
		rules = opt(rules)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		cr := compiledRule{Rule: r}
		cr.Tags = slices.Clone(r.Tags)
		if r.Type == MatchRegex {
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid pattern: %w", r.Category, err)
			}
			cr.re = re
		} else {
			cr.lowPattern = strings.ToLower(r.Pattern)
		}
		compiled = append(compiled, cr)
	}

	return &Engine{rules: compiled}, nil
}

// MustNew is New for rule tables known to be valid.
func MustNew(opts ...Option) *Engine {
	e, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Rules returns a copy of the engine's rule table in evaluation order.
func (e *Engine) Rules() []Rule {
	rules := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		rules[i] = r.Rule
		rules[i].Tags = slices.Clone(r.Tags)
	}
	return rules
}

type scoredMatch struct {
	rule   *compiledRule
	weight int
}

// Classify scores every matching rule against ctx and returns the best diagnosis.
// The same message, context and rule table always give the same result.
func (e *Engine) Classify(message string, ctx Context) Result {
	lowMessage := strings.ToLower(message)

	var matches []scoredMatch
	for i := range e.rules {
		r := &e.rules[i]
		if r.matches(message, lowMessage) {
			matches = append(matches, scoredMatch{rule: r, weight: adjustedWeight(r.Weight, r.Tags, ctx)})
		}
	}

	if len(matches) == 0 {
		return Unclassified()
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].weight > matches[j].weight
	})

	primary := matches[0]
	return Result{
		Category:   primary.rule.Category,
		Severity:   primary.rule.Severity,
		Confidence: min(primary.weight, MaxConfidence),
		Tags:       collectTags(matches),
		Suggestion: primary.rule.Suggestion,
	}
}

func adjustedWeight(base int, tags []string, ctx Context) int {
	score := base

	if versionBelow(ctx.RuntimeVersion, legacyRuntimeBelow) &&
		(slices.Contains(tags, "compatibility") || slices.Contains(tags, "php8")) {
		score += bonusLegacyRuntime
	}

	if versionBelow(ctx.FrameworkVersion, legacyFrameworkBelow) {
		score += bonusLegacyFramework
	}

	if ctx.IsMultisite && slices.Contains(tags, "multisite") {
		score += bonusMultisite
	}
	if ctx.IsREST && slices.Contains(tags, "rest") {
		score += bonusREST
	}
	if ctx.IsAdmin && slices.Contains(tags, "permission") {
		score += bonusAdminPermission
	}

	if ctx.Culprit != "" {
		culprit := strings.ToLower(ctx.Culprit)
		for _, tag := range tags {
			if strings.Contains(culprit, strings.ToLower(tag)) {
				score += bonusCulprit
				break
			}
		}
	}

	if ctx.IsSpike {
		score += bonusSpike
	}

	if versionAtLeast(ctx.RuntimeVersion, modernRuntimeFrom) && versionAtLeast(ctx.FrameworkVersion, modernFrameworkFrom) {
		score -= penaltyModernStack
	}

	return score
}

func collectTags(matches []scoredMatch) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, m := range matches {
		for _, tag := range m.rule.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags
}
