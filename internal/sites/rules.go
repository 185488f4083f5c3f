package sites

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var defaultRules []byte

// Rule describes how to extract fields from one family of pages.
type Rule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
	Start    []string `yaml:"start"`
	Title    []string `yaml:"title"`
	Time     []string `yaml:"time"`
	Author   []string `yaml:"author"`
	Content  []string `yaml:"content"`
	Media    []string `yaml:"media"`
	Document []string `yaml:"document"`
}

type ruleFile struct {
	Sites []Rule `yaml:"sites"`
}

// LoadRules parses a rule file.
func LoadRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse site rules: %w", err)
	}
	for i, r := range f.Sites {
		if r.Name == "" || len(r.Patterns) == 0 {
			return nil, fmt.Errorf("site rule %d: name and patterns are required", i)
		}
		if len(r.Content) == 0 && len(r.Media) == 0 {
			return nil, fmt.Errorf("site rule %q: needs content or media selectors", r.Name)
		}
	}
	return f.Sites, nil
}

// DefaultRules returns the embedded rule set.
func DefaultRules() ([]Rule, error) {
	return LoadRules(defaultRules)
}

// Seeds returns the start URLs of every rule.
func Seeds(rules []Rule) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, r := range rules {
		for _, s := range r.Start {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// AllowedDomains returns every exact host pattern across rules.
func AllowedDomains(rules []Rule) []string {
	var out []string
	for _, r := range rules {
		for _, p := range r.Patterns {
			host, _ := splitPattern(p)
			if len(host) > 2 && host[:2] == "*." {
				continue
			}
			out = append(out, host)
		}
	}
	return out
}
