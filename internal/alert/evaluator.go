package alert

import (
	"sync"
	"time"
)

// Firing is a rule that triggered.
type Firing struct {
	Rule    Rule
	Value   float64
	Message string
	At      time.Time
}

// Evaluator evaluates alert rules against successive metric sets. A rule
// with For > 0 must hold on every evaluation for that long before it
// fires; a fired rule stays quiet for the cooldown.
type Evaluator struct {
	rules    []Rule
	cooldown time.Duration

	// rule name -> first evaluation that matched
	pending map[string]time.Time
	// rule name -> last firing
	lastFired map[string]time.Time

	now func() time.Time

	mu sync.Mutex
}

// NewEvaluator validates rules and creates an evaluator.
func NewEvaluator(rules []Rule, cooldown time.Duration) (*Evaluator, error) {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return &Evaluator{
		rules:     rules,
		cooldown:  cooldown,
		pending:   make(map[string]time.Time),
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}, nil
}

// Rules returns the configured rules.
func (e *Evaluator) Rules() []Rule {
	return e.rules
}

// Evaluate checks every rule and returns those that fire now.
func (e *Evaluator) Evaluate(metrics map[string]float64) []Firing {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var fired []Firing
	for _, rule := range e.rules {
		if f, ok := e.evaluate(rule, metrics, now); ok {
			fired = append(fired, f)
		}
	}
	return fired
}

func (e *Evaluator) evaluate(rule Rule, metrics map[string]float64, now time.Time) (Firing, bool) {
	if !rule.Evaluate(metrics) {
		delete(e.pending, rule.Name)
		return Firing{}, false
	}

	if rule.For > 0 {
		pendingSince, isPending := e.pending[rule.Name]
		if !isPending {
			e.pending[rule.Name] = now
			return Firing{}, false
		}
		if now.Sub(pendingSince) < rule.For {
			return Firing{}, false
		}
	}

	if last, ok := e.lastFired[rule.Name]; ok && now.Sub(last) < e.cooldown {
		return Firing{}, false
	}

	e.lastFired[rule.Name] = now
	delete(e.pending, rule.Name)
	return Firing{
		Rule:    rule,
		Value:   metrics[rule.Metric()],
		Message: rule.FormatMessage(metrics),
		At:      now,
	}, true
}
