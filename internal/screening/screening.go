// Package screening detects emergency ("red-flag") symptoms in free patient text.
//
// Screening is a pure function of the text and an immutable RuleSet. It runs
// synchronously on every inbound message before any network call, so it never
// returns an error: any input, including empty text, yields a valid Result.
package screening

import (
	"strings"
)

// CriticalSeverity separates attention warnings (7) from emergencies (8..10).
const CriticalSeverity = 8

const (
	warningHeader  = "🚨 ОБНАРУЖЕНЫ КРИТИЧЕСКИЕ СИМПТОМЫ:\n\n"
	warningBullet  = "• "
	warningTrailer = "\n🏥 НЕМЕДЛЕННО ОБРАТИТЕСЬ К ВРАЧУ ИЛИ ВЫЗОВИТЕ СКОРУЮ ПОМОЩЬ!\n" +
		"📞 Скорая помощь: 103 или 112"
)

// Flag is one fired rule.
type Flag struct {
	Category string `json:"type"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
}

// Result is the outcome of one Screen call.
type Result struct {
	IsCritical  bool   `json:"is_critical"`
	Flags       []Flag `json:"flags"`
	MaxSeverity int    `json:"max_severity"`
}

// Categories lists the fired categories in detection order.
func (r Result) Categories() []string {
	out := make([]string, 0, len(r.Flags))
	for _, f := range r.Flags {
		out = append(out, f.Category)
	}
	return out
}

// Screener screens text against a fixed rule set. The zero value is not usable.
type Screener struct {
	rules *RuleSet
}

// New returns a Screener over rs.
func New(rs *RuleSet) *Screener {
	return &Screener{rules: rs}
}

// Rules exposes the underlying rule set.
func (s *Screener) Rules() *RuleSet { return s.rules }

// Screen runs every rule in declaration order against the lower-cased text.
func (s *Screener) Screen(text string) Result {
	res := Result{Flags: []Flag{}}
	if s == nil || s.rules == nil {
		return res
	}
	lower := strings.ToLower(text)
	for _, r := range s.rules.rules {
		if !r.matches(lower) {
			continue
		}
		res.Flags = append(res.Flags, Flag{
			Category: r.Category,
			Severity: r.Severity,
			Message:  r.Message,
		})
		if r.Severity > res.MaxSeverity {
			res.MaxSeverity = r.Severity
		}
	}
	res.IsCritical = res.MaxSeverity >= CriticalSeverity
	return res
}

var defaultScreener = New(MustDefaultRules())

// Screen checks text against the embedded rule set.
func Screen(text string) Result {
	return defaultScreener.Screen(text)
}

// FormatWarning renders flags as the patient-facing emergency notice.
// It returns "" for no flags; callers only format critical results.
func FormatWarning(flags []Flag) string {
	if len(flags) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(warningHeader)
	for _, f := range flags {
		b.WriteString(warningBullet)
		b.WriteString(f.Message)
		b.WriteString("\n")
	}
	b.WriteString(warningTrailer)
	return b.String()
}
