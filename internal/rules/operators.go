package rules

import (
	"strings"

	"github.com/John-Robertt/subresponse-go/internal/model"
)

// operatorSpec describes one condition operator. Negated operators share the
// positive matcher; a missing header is handled before either is consulted.
type operatorSpec struct {
	regex  bool
	negate bool
	match  func(actual string, c *compiledCondition) bool
}

var operators = map[model.ConditionOperator]operatorSpec{
	model.CondEquals:        {match: matchEquals},
	model.CondNotEquals:     {match: matchEquals, negate: true},
	model.CondContains:      {match: matchContains},
	model.CondNotContains:   {match: matchContains, negate: true},
	model.CondStartsWith:    {match: matchPrefix},
	model.CondNotStartsWith: {match: matchPrefix, negate: true},
	model.CondEndsWith:      {match: matchSuffix},
	model.CondNotEndsWith:   {match: matchSuffix, negate: true},
	model.CondRegex:         {match: matchRegex, regex: true},
	model.CondNotRegex:      {match: matchRegex, regex: true, negate: true},
}

func lookupOperator(op model.ConditionOperator) (operatorSpec, bool) {
	spec, ok := operators[op]
	return spec, ok
}

func isRegexOperator(op model.ConditionOperator) bool {
	return operators[op].regex
}

// regexPattern applies case folding through the (?i) flag rather than by
// lowercasing the pattern, which would corrupt escapes like \S or \D.
func regexPattern(c model.Condition) string {
	if c.CaseSensitive {
		return c.Value
	}
	return "(?i)" + c.Value
}

func matchEquals(actual string, c *compiledCondition) bool {
	return actual == c.value
}

func matchContains(actual string, c *compiledCondition) bool {
	return strings.Contains(actual, c.value)
}

func matchPrefix(actual string, c *compiledCondition) bool {
	return strings.HasPrefix(actual, c.value)
}

func matchSuffix(actual string, c *compiledCondition) bool {
	return strings.HasSuffix(actual, c.value)
}

func matchRegex(actual string, c *compiledCondition) bool {
	return c.re.MatchString(actual)
}
