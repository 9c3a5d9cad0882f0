// Package filter parses and evaluates the product-attribute predicates used
// to scope bulk stream operations.
//
// A filter is either "field=value" (exact, case-sensitive match) or
// "field~pattern" (regular-expression search against the attribute value).
// Multiple filters are combined with logical AND; an empty set matches every
// product. Referencing a field no product carries is not an error, it simply
// matches nothing.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// SyntaxError is raised for an unparsable filter expression or an invalid
// regular expression. It is fatal and raised before any product is
// inspected.
type SyntaxError struct {
	Expression string
	Err        error
}

func (e SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Invalid filter %q: %v", e.Expression, e.Err)
	}

	return fmt.Sprintf("Invalid filter %q: expected field=value or field~pattern", e.Expression)
}

// Unwrap exposes the underlying regexp error.
func (e SyntaxError) Unwrap() error {
	return e.Err
}

// Clause is a single parsed predicate.
type Clause struct {
	Field    string
	Operator string
	Value    string

	pattern *regexp.Regexp
}

// ClauseSet is an AND-combined set of clauses.
type ClauseSet struct {
	Clauses []Clause
}

// Parse turns a list of filter expressions into a clause set. All
// expressions are validated up front; a bad one aborts the whole parse.
func Parse(expressions []string) (*ClauseSet, error) {
	set := &ClauseSet{}

	for _, expr := range expressions {
		clause, err := parseClause(expr)
		if err != nil {
			return nil, err
		}

		set.Clauses = append(set.Clauses, clause)
	}

	return set, nil
}

func parseClause(expr string) (Clause, error) {
	idx := strings.IndexAny(expr, "=~")
	if idx <= 0 {
		return Clause{}, SyntaxError{Expression: expr}
	}

	clause := Clause{
		Field:    expr[:idx],
		Operator: string(expr[idx]),
		Value:    expr[idx+1:],
	}

	if clause.Operator == "~" {
		pattern, err := regexp.Compile(clause.Value)
		if err != nil {
			return Clause{}, SyntaxError{Expression: expr, Err: err}
		}

		clause.pattern = pattern
	}

	return clause, nil
}

// Match reports whether the attribute bag satisfies every clause. The
// evaluator is stateless and pure.
func (s *ClauseSet) Match(attributes map[string]string) bool {
	for _, clause := range s.Clauses {
		value, ok := attributes[clause.Field]
		if !ok {
			return false
		}

		if clause.Operator == "~" {
			// Unanchored search, not a full match.
			if !clause.pattern.MatchString(value) {
				return false
			}

			continue
		}

		if value != clause.Value {
			return false
		}
	}

	return true
}

// String renders the set the way it was given on the command line.
func (s *ClauseSet) String() string {
	parts := make([]string, 0, len(s.Clauses))
	for _, clause := range s.Clauses {
		parts = append(parts, clause.Field+clause.Operator+clause.Value)
	}

	return strings.Join(parts, " ")
}
