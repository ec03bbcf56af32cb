package rules

import (
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

type EvalError struct {
	AppError model.AppError
	Cause    error
}

func (e *EvalError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *EvalError) Unwrap() error { return e.Cause }

// Decision is the outcome of evaluating the rule set against one request.
type Decision struct {
	RuleName      string
	ResponseType  model.ResponseType
	Modifications *model.ResponseModifications
}

// TemplateName returns the template requested by the matched rule, or the
// default name when none is set.
func (d Decision) TemplateName() string {
	if d.Modifications == nil || strings.TrimSpace(d.Modifications.SubscriptionTemplate) == "" {
		return model.DefaultTemplateName
	}
	return d.Modifications.SubscriptionTemplate
}

type compiledCondition struct {
	header string
	value  string
	fold   bool
	re     *regexp.Regexp
	spec   operatorSpec
}

type compiledRule struct {
	rule       model.ResponseRule
	conditions []compiledCondition
}

// Evaluator is immutable after Compile and safe for concurrent use.
type Evaluator struct {
	version string
	rules   []compiledRule
}

func Compile(cfg *model.RulesConfig) (*Evaluator, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	ev := &Evaluator{version: cfg.Version}
	for _, r := range cfg.Rules {
		if !r.Enabled {
			continue
		}
		cr := compiledRule{rule: r, conditions: make([]compiledCondition, 0, len(r.Conditions))}
		for _, c := range r.Conditions {
			spec, _ := lookupOperator(c.Operator)
			cc := compiledCondition{
				header: http.CanonicalHeaderKey(strings.TrimSpace(c.HeaderName)),
				value:  c.Value,
				fold:   !c.CaseSensitive,
				spec:   spec,
			}
			if spec.regex {
				// Validate already proved the pattern compiles.
				cc.re = regexp.MustCompile(regexPattern(c))
			} else if cc.fold {
				cc.value = strings.ToLower(cc.value)
			}
			cr.conditions = append(cr.conditions, cc)
		}
		ev.rules = append(ev.rules, cr)
	}
	return ev, nil
}

func (ev *Evaluator) Version() string { return ev.version }

// Evaluate returns the first enabled rule whose conditions hold for headers.
func (ev *Evaluator) Evaluate(headers http.Header) (Decision, error) {
	for i := range ev.rules {
		r := &ev.rules[i]
		if !r.matches(headers) {
			continue
		}
		return Decision{
			RuleName:      r.rule.Name,
			ResponseType:  r.rule.ResponseType,
			Modifications: r.rule.ResponseModifications,
		}, nil
	}
	return Decision{}, &EvalError{
		AppError: model.AppError{
			Code:    "NO_MATCHING_RULE",
			Message: "没有任何响应规则匹配当前请求",
			Stage:   "evaluate_rules",
			Hint:    "add a trailing rule with operator OR and an always-true condition, or use AND with no conditions",
		},
	}
}

func (r *compiledRule) matches(headers http.Header) bool {
	if r.rule.Operator == model.RuleOR {
		for i := range r.conditions {
			if r.conditions[i].holds(headers) {
				return true
			}
		}
		return false
	}
	for i := range r.conditions {
		if !r.conditions[i].holds(headers) {
			return false
		}
	}
	return true
}

func (c *compiledCondition) holds(headers http.Header) bool {
	values := headerValues(headers, c.header)
	if len(values) == 0 {
		return false
	}
	actual := strings.Join(values, ", ")
	if c.fold && !c.spec.regex {
		actual = strings.ToLower(actual)
	}
	return c.spec.match(actual, c) != c.spec.negate
}

// headerValues looks key up canonically first, then case-insensitively for
// headers built as literals. Non-canonical variants are merged in key order.
func headerValues(headers http.Header, key string) []string {
	if values, ok := headers[key]; ok {
		return values
	}
	var keys []string
	for k := range headers {
		if strings.EqualFold(k, key) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	var values []string
	for _, k := range keys {
		values = append(values, headers[k]...)
	}
	return values
}
