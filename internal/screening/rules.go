package screening

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rule is one red-flag category. Keywords are stored lower-cased.
type Rule struct {
	Category string
	Keywords []string
	Patterns []*regexp.Regexp
	Severity int
	Message  string
}

// RuleSet is an ordered, immutable list of rules. Build it with LoadRules,
// ParseRules or NewRuleSet; it must not be modified afterwards.
type RuleSet struct {
	version int
	rules   []Rule
}

type ruleFile struct {
	Version int         `yaml:"version"`
	Rules   []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
	Severity int      `yaml:"severity"`
	Message  string   `yaml:"message"`
}

// DefaultRules returns the rule set compiled into the binary.
func DefaultRules() (*RuleSet, error) {
	return ParseRules(defaultRulesYAML)
}

// MustDefaultRules is DefaultRules for package initialisation and tests.
func MustDefaultRules() *RuleSet {
	rs, err := DefaultRules()
	if err != nil {
		panic(fmt.Sprintf("screening: embedded rules are invalid: %v", err))
	}
	return rs
}

// LoadRules reads a reviewed rule file. An empty path selects the embedded rules.
func LoadRules(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rule document.
func ParseRules(data []byte) (*RuleSet, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	rules := make([]Rule, 0, len(f.Rules))
	for i, raw := range f.Rules {
		r, err := compileRule(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, raw.Category, err)
		}
		rules = append(rules, r)
	}
	rs, err := NewRuleSet(rules...)
	if err != nil {
		return nil, err
	}
	rs.version = f.Version
	return rs, nil
}

func compileRule(raw ruleEntry) (Rule, error) {
	r := Rule{
		Category: raw.Category,
		Keywords: raw.Keywords,
		Severity: raw.Severity,
		Message:  raw.Message,
	}
	for _, p := range raw.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return Rule{}, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		r.Patterns = append(r.Patterns, re)
	}
	return r, nil
}

// NewRuleSet validates rules and freezes them in the given order.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("rule set is empty")
	}
	seen := make(map[string]struct{}, len(rules))
	frozen := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Category == "" {
			return nil, fmt.Errorf("rule without category")
		}
		if _, dup := seen[r.Category]; dup {
			return nil, fmt.Errorf("duplicate category %q", r.Category)
		}
		seen[r.Category] = struct{}{}
		if r.Severity < 1 || r.Severity > 10 {
			return nil, fmt.Errorf("category %q: severity %d outside 1..10", r.Category, r.Severity)
		}
		if strings.TrimSpace(r.Message) == "" {
			return nil, fmt.Errorf("category %q: empty message", r.Category)
		}
		if len(r.Keywords) == 0 && len(r.Patterns) == 0 {
			return nil, fmt.Errorf("category %q: no keywords or patterns", r.Category)
		}

		keywords := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				return nil, fmt.Errorf("category %q: empty keyword", r.Category)
			}
			keywords = append(keywords, kw)
		}
		frozen = append(frozen, Rule{
			Category: r.Category,
			Keywords: keywords,
			Patterns: append([]*regexp.Regexp(nil), r.Patterns...),
			Severity: r.Severity,
			Message:  r.Message,
		})
	}
	return &RuleSet{rules: frozen}, nil
}

// Len reports the number of rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Version is the version field of the rule document, 0 for programmatic sets.
func (rs *RuleSet) Version() int { return rs.version }

// Rules returns a copy of the rules in declaration order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Rule looks a rule up by category.
func (rs *RuleSet) Rule(category string) (Rule, bool) {
	for _, r := range rs.rules {
		if r.Category == category {
			return r, true
		}
	}
	return Rule{}, false
}

// matches reports whether the rule fires on already lower-cased text.
func (r Rule) matches(lower string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, re := range r.Patterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// MatchesPattern reports whether any of the rule's patterns (keywords ignored) match text.
func (r Rule) MatchesPattern(text string) bool {
	lower := strings.ToLower(text)
	for _, re := range r.Patterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
