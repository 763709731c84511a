// Package protocol implements the line-oriented order entry format and the
// acknowledgement, trade and top-of-book lines produced in response.
//
//	N, user, symbol, price, qty, side, userOrderId   new order (price 0 = market)
//	C, user, userOrderId                             cancel
//	F                                                flush all books
//
// Fields may be separated by commas, whitespace or both. Lines starting
// with '#' and blank lines are ignored.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"orderbook/src/engine"
)

type Kind byte

const (
	KindNew    Kind = 'N'
	KindCancel Kind = 'C'
	KindFlush  Kind = 'F'
)

type Command struct {
	Kind     Kind
	UserID   int64
	OrderID  int64
	Symbol   string
	Price    int64
	Quantity int64
	Side     engine.Side
}

type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
}

func fields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// Parse decodes one input line. ok is false for comments and blank lines.
func Parse(line string) (cmd Command, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Command{}, false, nil
	}

	parts := fields(trimmed)
	if len(parts) == 0 {
		return Command{}, false, nil
	}
	if len(parts[0]) != 1 {
		return Command{}, false, &ParseError{Line: line, Reason: "unknown command " + parts[0]}
	}
	switch Kind(parts[0][0]) {
	case KindNew:
		if len(parts) != 7 {
			return Command{}, false, &ParseError{Line: line, Reason: "new order needs 6 fields"}
		}
		ints, err := parseInts(line, parts[1], parts[3], parts[4], parts[6])
		if err != nil {
			return Command{}, false, err
		}
		side, err := engine.ParseSide(parts[5])
		if err != nil {
			return Command{}, false, &ParseError{Line: line, Reason: err.Error()}
		}
		return Command{
			Kind:     KindNew,
			UserID:   ints[0],
			Symbol:   parts[2],
			Price:    ints[1],
			Quantity: ints[2],
			Side:     side,
			OrderID:  ints[3],
		}, true, nil

	case KindCancel:
		if len(parts) != 3 {
			return Command{}, false, &ParseError{Line: line, Reason: "cancel needs 2 fields"}
		}
		ints, err := parseInts(line, parts[1], parts[2])
		if err != nil {
			return Command{}, false, err
		}
		return Command{Kind: KindCancel, UserID: ints[0], OrderID: ints[1]}, true, nil

	case KindFlush:
		return Command{Kind: KindFlush}, true, nil
	}
	return Command{}, false, &ParseError{Line: line, Reason: "unknown command " + parts[0]}
}

func parseInts(line string, values ...string) ([]int64, error) {
	out := make([]int64, len(values))
	for i, v := range values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: "not an integer: " + v}
		}
		out[i] = n
	}
	return out, nil
}
