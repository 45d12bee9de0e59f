package screening

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreenKeywordFiresCategory(t *testing.T) {
	res := Screen("Рвота с кровью уже второй день")

	assert.True(t, res.IsCritical)
	assert.Contains(t, res.Categories(), "blood_vomit")
	assert.GreaterOrEqual(t, res.MaxSeverity, 10)
}

func TestScreenIsCaseInsensitive(t *testing.T) {
	res := Screen("РВОТА С КРОВЬЮ")
	assert.Contains(t, res.Categories(), "blood_vomit")
}

func TestScreenEveryKeywordFiresItsCategory(t *testing.T) {
	for _, rule := range MustDefaultRules().Rules() {
		for _, kw := range rule.Keywords {
			res := Screen("пациент пишет: " + kw)
			assert.Containsf(t, res.Categories(), rule.Category, "keyword %q", kw)
			assert.GreaterOrEqualf(t, res.MaxSeverity, rule.Severity, "keyword %q", kw)
		}
	}
}

func TestScreenNoMatch(t *testing.T) {
	for _, text := range []string{
		"",
		"   ",
		"Все в порядке, чувствую себя хорошо",
		"I feel fine today",
	} {
		res := Screen(text)
		assert.Falsef(t, res.IsCritical, "text %q", text)
		assert.Emptyf(t, res.Flags, "text %q", text)
		assert.NotNil(t, res.Flags)
		assert.Equalf(t, 0, res.MaxSeverity, "text %q", text)
	}
}

func TestScreenSeverityThreshold(t *testing.T) {
	// dehydration alone is severity 7: attention, not critical
	res := Screen("сухость во рту")
	require.Equal(t, []string{"dehydration"}, res.Categories())
	assert.Equal(t, 7, res.MaxSeverity)
	assert.False(t, res.IsCritical)

	// constant vomiting alone is severity 8: critical
	res = Screen("постоянная рвота")
	require.Equal(t, []string{"constant_vomiting"}, res.Categories())
	assert.Equal(t, 8, res.MaxSeverity)
	assert.True(t, res.IsCritical)
}

func TestScreenThresholdWithCustomRules(t *testing.T) {
	rs, err := NewRuleSet(
		Rule{Category: "attention", Keywords: []string{"alpha"}, Severity: 7, Message: "a"},
		Rule{Category: "critical", Keywords: []string{"omega"}, Severity: 8, Message: "c"},
	)
	require.NoError(t, err)
	s := New(rs)

	assert.False(t, s.Screen("alpha").IsCritical)
	assert.True(t, s.Screen("omega").IsCritical)
	assert.True(t, s.Screen("alpha and omega").IsCritical)
	assert.Equal(t, 8, s.Screen("alpha and omega").MaxSeverity)
}

func TestScreenPainScalePattern(t *testing.T) {
	res := Screen("боль 9 из 10")

	require.Contains(t, res.Categories(), "severe_pain")
	assert.Equal(t, 10, res.MaxSeverity)
	assert.True(t, res.IsCritical)

	rule, ok := MustDefaultRules().Rule("severe_pain")
	require.True(t, ok)
	assert.True(t, rule.MatchesPattern("боль 9 из 10"))
	assert.True(t, rule.MatchesPattern("10 из 10, такая боль"))
	assert.False(t, rule.MatchesPattern("боль 3 из 10"))
}

func TestScreenPatternOnlyRuleFires(t *testing.T) {
	rule, _ := MustDefaultRules().Rule("severe_pain")
	rs, err := NewRuleSet(Rule{
		Category: "severe_pain",
		Patterns: rule.Patterns,
		Severity: 10,
		Message:  rule.Message,
	})
	require.NoError(t, err)

	res := New(rs).Screen("Боль 9 из 10")
	assert.True(t, res.IsCritical)
	assert.Equal(t, []string{"severe_pain"}, res.Categories())

	assert.Empty(t, New(rs).Screen("боль").Flags)
}

func TestScreenMultipleCategoriesInDeclarationOrder(t *testing.T) {
	res := Screen("сильная боль в груди")

	assert.Equal(t, []string{"severe_pain", "chest_pain"}, res.Categories())
	assert.Equal(t, 10, res.MaxSeverity)
}

func TestScreenRuleFiresOnce(t *testing.T) {
	res := Screen("рвота с кровью, кровавая рвота, рвет кровью")
	count := 0
	for _, c := range res.Categories() {
		if c == "blood_vomit" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestScreenFeverPattern(t *testing.T) {
	res := Screen("Температура 39 градусов")
	assert.Contains(t, res.Categories(), "high_fever")
	assert.Equal(t, 9, res.MaxSeverity)
}

func TestScreenConcurrentUse(t *testing.T) {
	texts := []string{"боль 9 из 10", "всё хорошо", "одышка", "черный стул"}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := texts[i%len(texts)]
			want := Screen(text)
			for j := 0; j < 50; j++ {
				assert.Equal(t, want, Screen(text))
			}
		}(i)
	}
	wg.Wait()
}

func TestNilScreener(t *testing.T) {
	var s *Screener
	res := s.Screen("боль 9 из 10")
	assert.False(t, res.IsCritical)
	assert.Empty(t, res.Flags)
}

func TestFormatWarning(t *testing.T) {
	assert.Equal(t, "", FormatWarning(nil))
	assert.Equal(t, "", FormatWarning([]Flag{}))

	res := Screen("рвота с кровью")
	warning := FormatWarning(res.Flags)
	assert.True(t, strings.HasPrefix(warning, warningHeader))
	assert.Contains(t, warning, "• 🚨 КРИТИЧНО: Рвота с кровью\n")
	assert.Contains(t, warning, "103 или 112")
}

func TestFormatWarningKeepsOrder(t *testing.T) {
	flags := []Flag{
		{Category: "b", Severity: 9, Message: "second-declared"},
		{Category: "a", Severity: 10, Message: "first-declared"},
	}
	warning := FormatWarning(flags)
	assert.Less(t, strings.Index(warning, "second-declared"), strings.Index(warning, "first-declared"))
	assert.Equal(t, 2, strings.Count(warning, warningBullet))
}
