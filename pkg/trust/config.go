package trust

import (
	"fmt"
	"io"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/convertly/funnel/pkg/domain"
)

// ruleSpec is the on-disk shape of one rule. Predicates are referenced
// by registered name; the behavioral logic never leaves the binary.
type ruleSpec struct {
	Point    string `mapstructure:"point"`
	When     string `mapstructure:"when"`
	Message  string `mapstructure:"message"`
	Priority string `mapstructure:"priority"`
	Category string `mapstructure:"category"`
}

type rulesFile struct {
	Rules []map[string]any `yaml:"rules"`
}

// RulesFromYAML loads a rule table from a YAML document:
//
//	rules:
//	  - point: price_confirmation
//	    when: low_confidence
//	    message: "..."
//	    priority: high
//	    category: transparency
//
// Document order becomes declaration order.
func RulesFromYAML(r io.Reader) ([]Rule, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		var spec ruleSpec
		if err := mapstructure.Decode(entry, &spec); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rule, err := spec.build()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s ruleSpec) build() (Rule, error) {
	if s.Message == "" {
		return Rule{}, fmt.Errorf("missing message")
	}
	pred, ok := PredicateByName(s.When)
	if !ok {
		return Rule{}, fmt.Errorf("unknown predicate %q", s.When)
	}
	prio, err := parsePriority(s.Priority)
	if err != nil {
		return Rule{}, err
	}
	return Rule{
		Point:    domain.InjectionPoint(s.Point),
		When:     pred,
		Message:  s.Message,
		Priority: prio,
		Category: domain.TrustCategory(s.Category),
	}, nil
}

func parsePriority(s string) (domain.TrustPriority, error) {
	switch s {
	case "high":
		return domain.TrustHigh, nil
	case "medium", "":
		return domain.TrustMedium, nil
	case "low":
		return domain.TrustLow, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}
