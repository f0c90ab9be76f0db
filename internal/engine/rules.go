package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

// ShouldTrigger reports whether every configured predicate of the rule holds for the
// cluster snapshot. Unset predicates always pass; the enabled flag and tenant scope are
// checked by MatchingRules.
func ShouldTrigger(rule models.FeedbackLoopRule, cluster models.ErrorCluster) bool {
	trigger := rule.Trigger
	if len(trigger.Severity) > 0 && !severityMatches(trigger.Severity, cluster.Severity) {
		return false
	}
	if trigger.ErrorCountThreshold > 0 && cluster.ErrorCount < trigger.ErrorCountThreshold {
		return false
	}
	if len(trigger.Services) > 0 && !servicesIntersect(trigger.Services, cluster.AffectedServices) {
		return false
	}
	return true
}

// MatchingRules filters rules down to the enabled rules of the cluster's tenant whose
// trigger matches. Order is preserved.
func MatchingRules(rules []models.FeedbackLoopRule, cluster models.ErrorCluster) []models.FeedbackLoopRule {
	matched := make([]models.FeedbackLoopRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled || rule.TenantID != cluster.TenantID {
			continue
		}
		if ShouldTrigger(rule, cluster) {
			matched = append(matched, rule)
		}
	}
	return matched
}

func severityMatches(allowed []models.Severity, severity models.Severity) bool {
	for _, s := range allowed {
		if strings.EqualFold(string(s), string(severity)) {
			return true
		}
	}
	return false
}

func servicesIntersect(allowed, affected []string) bool {
	for _, want := range allowed {
		for _, have := range affected {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// rulePackFile is the YAML root of a seed rule pack.
type rulePackFile struct {
	Rules []rulePackEntry `yaml:"rules"`
}

type rulePackEntry struct {
	models.FeedbackLoopRule `yaml:",inline"`
	Enabled                 *bool `yaml:"enabled"`
}

// LoadRulePack reads seed rules from a YAML file. A missing path or file yields no rules.
// Rules default to enabled and fire_once when the pack does not say otherwise.
func LoadRulePack(path string) ([]models.FeedbackLoopRule, error) {
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
	var file rulePackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule pack: %w", err)
	}

	rules := make([]models.FeedbackLoopRule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		rule := entry.FeedbackLoopRule
		rule.Enabled = entry.Enabled == nil || *entry.Enabled
		if rule.FireMode == "" {
			rule.FireMode = models.FireOnce
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule pack entry %d (%s): %w", i, rule.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
