// Package compare decides whether actual program output matches expected
// output under a configurable comparison policy and produces a bounded
// description of the first difference.
package compare

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"unicode"

	"github.com/codetask/validator/types"
)

// maxExcerpt bounds the length of any expected / actual excerpt included in
// a mismatch, to avoid leaking excessive data back to the submitter.
const maxExcerpt = 256

// Mismatch describes the first difference found between expected and actual
// output. A nil *Mismatch means the outputs matched.
type Mismatch struct {
	Position string // "line 3" or "token 5"
	Expected string
	Actual   string
	Extra    string // non positional problem (e.g. token count)
}

func (m *Mismatch) Error() string {
	if m.Extra != "" {
		return m.Extra
	}
	return fmt.Sprintf("at %s, expected: %s, got: %s", m.Position, m.Expected, m.Actual)
}

// Output runs the policy selected by mode over expected and actual.
// epsilon is only consulted for numeric tolerance.
func Output(mode types.ComparisonMode, epsilon float64, expected, actual []byte) *Mismatch {
	switch mode {
	case types.ModeExact:
		return exact(expected, actual)
	case types.ModeTrimmedLines:
		return trimmedLines(bytes.NewReader(expected), bytes.NewReader(actual))
	case types.ModeTokenSequence:
		return tokens(expected, actual, func(exp, act string) bool { return exp == act })
	case types.ModeNumericTolerance:
		return tokens(expected, actual, func(exp, act string) bool {
			return numericEqual(exp, act, epsilon)
		})
	default:
		return &Mismatch{Extra: fmt.Sprintf("unknown comparison mode %d", mode)}
	}
}

func exact(expected, actual []byte) *Mismatch {
	if bytes.Equal(expected, actual) {
		return nil
	}
	// locate the first differing line for the excerpt
	expLines := bytes.Split(expected, []byte{'\n'})
	actLines := bytes.Split(actual, []byte{'\n'})
	for i := 0; i < len(expLines) || i < len(actLines); i++ {
		var exp, act []byte
		hasExp := i < len(expLines)
		hasAct := i < len(actLines)
		if hasExp {
			exp = expLines[i]
		}
		if hasAct {
			act = actLines[i]
		}
		if !hasExp || !hasAct || !bytes.Equal(exp, act) {
			return &Mismatch{
				Position: "line " + strconv.Itoa(i+1),
				Expected: excerpt(string(exp)),
				Actual:   excerpt(string(act)),
			}
		}
	}
	return &Mismatch{Extra: "outputs differ"}
}

// trimmedLines compares line by line ignoring trailing white spaces on each
// line and trailing empty lines of either side.
func trimmedLines(expected, actual io.Reader) *Mismatch {
	expScan := bufio.NewScanner(expected)
	actScan := bufio.NewScanner(actual)

	for line := 1; ; line++ {
		exp, hasExp := scanTrimRight(expScan)
		act, hasAct := scanTrimRight(actScan)

		// EOF at the same time
		if !hasExp && !hasAct {
			return nil
		}
		if exp != act {
			return &Mismatch{
				Position: "line " + strconv.Itoa(line),
				Expected: excerpt(exp),
				Actual:   excerpt(act),
			}
		}
		// both exist and are equal
		if hasExp && hasAct {
			continue
		}
		// one side ended: the rest must be blank lines only
		if m := verifyEOFSpace("actual", actScan); m != nil {
			return m
		}
		if m := verifyEOFSpace("expected", expScan); m != nil {
			return m
		}
		return nil
	}
}

func tokens(expected, actual []byte, eq func(exp, act string) bool) *Mismatch {
	expTok := bytes.Fields(expected)
	actTok := bytes.Fields(actual)
	// structural mismatch is always a failure
	if len(expTok) != len(actTok) {
		return &Mismatch{Extra: fmt.Sprintf("expected %d tokens, got %d", len(expTok), len(actTok))}
	}
	for i := range expTok {
		exp, act := string(expTok[i]), string(actTok[i])
		if !eq(exp, act) {
			return &Mismatch{
				Position: "token " + strconv.Itoa(i+1),
				Expected: excerpt(exp),
				Actual:   excerpt(act),
			}
		}
	}
	return nil
}

// numericEqual parses both tokens as numbers and compares within epsilon.
// Non-numeric tokens fall back to exact match.
func numericEqual(exp, act string, epsilon float64) bool {
	ev, eerr := strconv.ParseFloat(exp, 64)
	av, aerr := strconv.ParseFloat(act, 64)
	if eerr != nil || aerr != nil {
		return exp == act
	}
	d := ev - av
	if d < 0 {
		d = -d
	}
	return d <= epsilon
}

func scanTrimRight(sc *bufio.Scanner) (string, bool) {
	if sc.Scan() {
		return trimRight(sc), true
	}
	return "", false
}

func verifyEOFSpace(name string, sc *bufio.Scanner) *Mismatch {
	for sc.Scan() {
		if v := trimRight(sc); v != "" {
			return &Mismatch{Extra: fmt.Sprintf("%s has more content: %s", name, excerpt(v))}
		}
	}
	return nil
}

func trimRight(sc *bufio.Scanner) string {
	return string(bytes.TrimRightFunc(sc.Bytes(), unicode.IsSpace))
}

func excerpt(s string) string {
	if len(s) > maxExcerpt {
		return s[:maxExcerpt] + "..."
	}
	return s
}
