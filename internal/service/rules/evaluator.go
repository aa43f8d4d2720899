// Package rules decides which threshold actions fire for a sensor reading.
package rules

import (
	"github.com/oshokin/remo-automation/internal/domain/automation"
)

// Evaluator holds an immutable, ordered set of threshold rules.
type Evaluator struct {
	// rules are kept in declaration order.
	rules []automation.ThresholdRule
}

// NewEvaluator validates the rules and returns an evaluator over a private copy.
func NewEvaluator(rules []automation.ThresholdRule) (*Evaluator, error) {
	if err := automation.ValidateThresholds(rules); err != nil {
		return nil, err
	}

	return &Evaluator{
		rules: append([]automation.ThresholdRule(nil), rules...),
	}, nil
}

// Evaluate returns every rule that matches the reading in declaration order.
// No prioritization is applied: each match's Action is to be executed.
func (e *Evaluator) Evaluate(reading automation.SensorReading) []automation.ThresholdRule {
	var matched []automation.ThresholdRule

	for _, rule := range e.rules {
		if rule.Matches(reading) {
			matched = append(matched, rule)
		}
	}

	return matched
}
