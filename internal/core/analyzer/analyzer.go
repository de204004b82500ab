// Package analyzer extracts entity and category hints from free-text questions.
package analyzer

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Analyzer is a stateless matcher over two independent ordered rule tables.
type Analyzer struct {
	entityRules   []compiledRule
	categoryRules []compiledRule
}

// New compiles both tables. Category rule values must belong to the category vocabulary.
func New(entityRules, categoryRules []Rule) (*Analyzer, error) {
	entities, err := compile("entity", entityRules)
	if err != nil {
		return nil, err
	}
	categories, err := compile("category", categoryRules)
	if err != nil {
		return nil, err
	}
	for _, r := range categories {
		if !domain.IsKnownCategory(r.Value) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "compile category rules", fmt.Errorf("rule %s: unknown category %q", r.Name, r.Value))
		}
	}
	return &Analyzer{entityRules: entities, categoryRules: categories}, nil
}

// Default returns the analyzer over the built-in tables.
func Default() *Analyzer {
	a, err := New(DefaultEntityRules, DefaultCategoryRules)
	if err != nil {
		panic(fmt.Sprintf("analyzer: built-in rules do not compile: %v", err))
	}
	return a
}

type rulesFile struct {
	EntityRules   []Rule `yaml:"entity_rules"`
	CategoryRules []Rule `yaml:"category_rules"`
}

// LoadRulesFile reads a YAML rule table file. A table omitted from the file falls back to
// the built-in one.
func LoadRulesFile(path string) (*Analyzer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse rules file", err)
	}
	if len(file.EntityRules) == 0 {
		file.EntityRules = DefaultEntityRules
	}
	if len(file.CategoryRules) == 0 {
		file.CategoryRules = DefaultCategoryRules
	}
	return New(file.EntityRules, file.CategoryRules)
}

// Analyze returns the first matching entity and category hints. Either may be absent.
func (a *Analyzer) Analyze(text string) domain.Hints {
	return domain.Hints{
		EntityID:    firstMatch(a.entityRules, text),
		CategoryTag: firstMatch(a.categoryRules, text),
	}
}

// EntityRules returns the entity table in evaluation order.
func (a *Analyzer) EntityRules() []Rule { return plain(a.entityRules) }

// CategoryRules returns the category table in evaluation order.
func (a *Analyzer) CategoryRules() []Rule { return plain(a.categoryRules) }

func firstMatch(rules []compiledRule, text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, r := range rules {
		if r.re.MatchString(text) {
			return r.Value
		}
	}
	return ""
}

func compile(table string, rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.Value) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "compile "+table+" rules", fmt.Errorf("rule #%d (%s) has empty value", i, r.Name))
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "compile "+table+" rules", fmt.Errorf("rule #%d (%s): %w", i, r.Name, err))
		}
		out = append(out, compiledRule{Rule: r, re: re})
	}
	return out, nil
}

func plain(rules []compiledRule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = r.Rule
	}
	return out
}
