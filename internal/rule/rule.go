package rule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ampfilter/internal/logger"
)

// Operator is a comparison applied to (measurement, threshold).
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Rule is one threshold condition over a single measurement channel.
// Text preserves the rule exactly as the operator entered it (surrounding
// whitespace trimmed) so outbound events can echo it verbatim.
type Rule struct {
	Channel   string   `json:"channel"`
	Op        Operator `json:"operator"`
	Threshold int      `json:"threshold"`
	Text      string   `json:"text"`
}

// Parse rejection reasons
var (
	ErrEmptyRule     = errors.New("rule text is empty")
	ErrBadChannel    = errors.New("channel must be 'I' followed by one lowercase letter")
	ErrBadOperator   = errors.New("operator must be one of >, <, =, >=, <=")
	ErrBadThreshold  = errors.New("threshold must be a non-negative integer")
	ErrTrailingInput = errors.New("unexpected trailing input after threshold")
)

// ValidationError reports a rule string that does not match the grammar,
// carrying the offending text and the typed reason.
type ValidationError struct {
	Text   string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule %q: %v", e.Text, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// Parse parses a rule string of the form <channel> <op> <threshold>,
// e.g. "Ia > 5". Whitespace around the operator is optional.
func Parse(text string) (Rule, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Rule{}, &ValidationError{Text: text, Reason: ErrEmptyRule}
	}

	s := trimmed
	if len(s) < 2 || s[0] != 'I' || s[1] < 'a' || s[1] > 'z' {
		return Rule{}, &ValidationError{Text: trimmed, Reason: ErrBadChannel}
	}
	channel := s[:2]
	s = strings.TrimLeft(s[2:], " \t")

	var op Operator
	switch {
	case strings.HasPrefix(s, string(OpGreaterEqual)):
		op = OpGreaterEqual
	case strings.HasPrefix(s, string(OpLessEqual)):
		op = OpLessEqual
	case strings.HasPrefix(s, string(OpGreater)):
		op = OpGreater
	case strings.HasPrefix(s, string(OpLess)):
		op = OpLess
	case strings.HasPrefix(s, string(OpEqual)):
		op = OpEqual
	default:
		return Rule{}, &ValidationError{Text: trimmed, Reason: ErrBadOperator}
	}
	s = strings.TrimLeft(s[len(op):], " \t")

	if s == "" {
		return Rule{}, &ValidationError{Text: trimmed, Reason: ErrBadThreshold}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			// Digits followed by anything else is trailing garbage,
			// no digits at all is a missing threshold.
			if i > 0 {
				return Rule{}, &ValidationError{Text: trimmed, Reason: ErrTrailingInput}
			}
			return Rule{}, &ValidationError{Text: trimmed, Reason: ErrBadThreshold}
		}
	}
	threshold, err := strconv.Atoi(s)
	if err != nil {
		return Rule{}, &ValidationError{Text: trimmed, Reason: ErrBadThreshold}
	}

	return Rule{
		Channel:   channel,
		Op:        op,
		Threshold: threshold,
		Text:      trimmed,
	}, nil
}

// Render returns the normalized textual form of the rule.
func (r Rule) Render() string {
	return fmt.Sprintf("%s %s %d", r.Channel, r.Op, r.Threshold)
}

// Evaluate applies the rule's operator to a measurement value. Pure, no
// side effects. An operator outside the supported set is a parser defect;
// it is logged and evaluates to false.
func (r Rule) Evaluate(value int) bool {
	switch r.Op {
	case OpGreater:
		return value > r.Threshold
	case OpLess:
		return value < r.Threshold
	case OpEqual:
		return value == r.Threshold
	case OpGreaterEqual:
		return value >= r.Threshold
	case OpLessEqual:
		return value <= r.Threshold
	default:
		lg := logger.WithComponent("rule")
		lg.Error().
			Str("operator", string(r.Op)).
			Str("rule", r.Text).
			Msg("unsupported operator reached evaluation")
		return false
	}
}
