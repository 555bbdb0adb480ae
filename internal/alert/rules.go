// Package alert raises account-level alerts from threshold rules such as
// "drawdown_pct > 10".
package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/upbot/internal/core"
)

// Rule defines an alert rule.
type Rule struct {
	Name     string        `mapstructure:"name"`
	Expr     string        `mapstructure:"expr"`
	For      time.Duration `mapstructure:"for"`
	Severity string        `mapstructure:"severity"`
	Message  string        `mapstructure:"message"`
}

// exprPattern is "metric op value".
var exprPattern = regexp.MustCompile(`^(\w+)\s*(>=|<=|==|!=|>|<)\s*(-?[\d.]+)$`)

type condition struct {
	metric    string
	op        string
	threshold float64
}

func (r Rule) parse() (condition, error) {
	m := exprPattern.FindStringSubmatch(strings.TrimSpace(r.Expr))
	if len(m) != 4 {
		return condition{}, fmt.Errorf("alert %q: expression %q is not \"metric op value\"", r.Name, r.Expr)
	}
	threshold, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return condition{}, fmt.Errorf("alert %q: threshold %q: %w", r.Name, m[3], err)
	}
	return condition{metric: m[1], op: m[2], threshold: threshold}, nil
}

// Metric returns the metric the rule watches, or "" for a bad expression.
func (r Rule) Metric() string {
	c, err := r.parse()
	if err != nil {
		return ""
	}
	return c.metric
}

// Validate checks the rule can be evaluated.
func (r Rule) Validate() error {
	if r.Name == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("alert rule without a name"))
	}
	if _, err := r.parse(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	if r.For < 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("alert %q: for cannot be negative", r.Name))
	}
	return nil
}

// Evaluate evaluates the rule expression against metrics. A missing
// metric or a bad expression never triggers.
func (r Rule) Evaluate(metrics map[string]float64) bool {
	c, err := r.parse()
	if err != nil {
		return false
	}

	value, exists := metrics[c.metric]
	if !exists {
		return false
	}

	switch c.op {
	case ">":
		return value > c.threshold
	case "<":
		return value < c.threshold
	case ">=":
		return value >= c.threshold
	case "<=":
		return value <= c.threshold
	case "==":
		return value == c.threshold
	case "!=":
		return value != c.threshold
	default:
		return false
	}
}

// FormatMessage formats the alert message with the watched metric's value.
func (r Rule) FormatMessage(metrics map[string]float64) string {
	msg := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(r.Severity), r.Name, r.Message)
	if c, err := r.parse(); err == nil {
		if v, ok := metrics[c.metric]; ok {
			msg += fmt.Sprintf(" (%s=%.4g)", c.metric, v)
		}
	}
	return msg
}
