package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSet appends configurable findings when computed figures cross thresholds.
type RuleSet struct {
	rules  []compiledRule
	logger *slog.Logger
}

// Rule is a single insight rule, e.g. condition "breach_rate_pct > 20".
// "{value}" in the message is replaced by the field value.
type Rule struct {
	ID        string `yaml:"id"`
	Condition string `yaml:"condition"`
	Message   string `yaml:"message"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

type compiledRule struct {
	Rule
	field     string
	op        string
	threshold float64
}

// LoadRules reads a rule pack. An empty path or a missing file yields a nil
// RuleSet, which evaluates to no findings.
func LoadRules(path string, logger *slog.Logger) (*RuleSet, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rule pack %s: %w", path, err)
	}
	return NewRuleSet(cfg.Rules, logger)
}

// NewRuleSet compiles rules, rejecting conditions that cannot be evaluated.
func NewRuleSet(rules []Rule, logger *slog.Logger) (*RuleSet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		c, err := compileRule(rule)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}
	return &RuleSet{rules: compiled, logger: logger}, nil
}

func compileRule(rule Rule) (compiledRule, error) {
	parts := strings.Fields(rule.Condition)
	if len(parts) != 3 {
		return compiledRule{}, fmt.Errorf("rule %q: condition %q must be \"field op value\"", rule.ID, rule.Condition)
	}
	switch parts[1] {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return compiledRule{}, fmt.Errorf("rule %q: unsupported operator %q", rule.ID, parts[1])
	}
	threshold, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return compiledRule{}, fmt.Errorf("rule %q: threshold %q is not a number", rule.ID, parts[2])
	}
	if strings.TrimSpace(rule.Message) == "" {
		return compiledRule{}, fmt.Errorf("rule %q: message is required", rule.ID)
	}
	return compiledRule{Rule: rule, field: parts[0], op: parts[1], threshold: threshold}, nil
}

// Len returns the number of loaded rules.
func (r *RuleSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Evaluate returns the messages of matching rules in rule order. Rules naming
// an unknown field never match.
func (r *RuleSet) Evaluate(fields map[string]float64) []string {
	if r == nil {
		return nil
	}
	matched := make([]string, 0)
	for _, rule := range r.rules {
		value, ok := fields[rule.field]
		if !ok {
			r.logger.Debug("insight rule references unknown field", slog.String("rule", rule.ID), slog.String("field", rule.field))
			continue
		}
		if !compareFloat(value, rule.op, rule.threshold) {
			continue
		}
		msg := strings.ReplaceAll(rule.Message, "{value}", strconv.FormatFloat(value, 'f', 1, 64))
		matched = appendUnique(matched, msg)
	}
	return matched
}

func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		seen[item] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
