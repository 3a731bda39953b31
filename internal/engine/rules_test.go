package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRulesEvaluate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(`rules:
  - id: breach-high
    condition: "breach_rate_pct > 20"
    message: "Breach rate {value}% exceeds the 20% objective."
  - id: backlog
    condition: "backlog >= 10"
    message: "Backlog needs attention."
  - id: unknown-field
    condition: "mystery > 0"
    message: "never"
`), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if rules.Len() != 3 {
		t.Fatalf("expected 3 rules, got %d", rules.Len())
	}

	got := rules.Evaluate(map[string]float64{"breach_rate_pct": 25, "backlog": 4})
	if len(got) != 1 || got[0] != "Breach rate 25.0% exceeds the 20% objective." {
		t.Fatalf("unexpected findings %v", got)
	}
}

func TestLoadRulesNoFile(t *testing.T) {
	rules, err := LoadRules("non-existent", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rules != nil {
		t.Fatalf("expected nil rule set when file missing")
	}
	if got := rules.Evaluate(map[string]float64{"total": 1}); len(got) != 0 {
		t.Fatalf("nil rule set must not produce findings")
	}
}

func TestNewRuleSetRejectsMalformedConditions(t *testing.T) {
	bad := []Rule{
		{ID: "fields", Condition: "breach_rate_pct >", Message: "m"},
		{ID: "op", Condition: "backlog ~ 3", Message: "m"},
		{ID: "number", Condition: "backlog > many", Message: "m"},
		{ID: "message", Condition: "backlog > 1"},
	}
	for _, rule := range bad {
		if _, err := NewRuleSet([]Rule{rule}, nil); err == nil {
			t.Errorf("rule %s: expected compile error", rule.ID)
		}
	}
}
