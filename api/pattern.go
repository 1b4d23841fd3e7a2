package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupportedPattern is returned for receive patterns other than a line,
// everything, or a positive byte count.
var ErrUnsupportedPattern = errors.New("unsupported receive pattern")

// PatternKind selects how much a receive call reads.
type PatternKind int

const (
	// PatternLine reads up to a CR, LF or CRLF terminator, which is dropped.
	PatternLine PatternKind = iota
	// PatternAll reads until the peer closes its side.
	PatternAll
	// PatternBytes reads exactly N bytes.
	PatternBytes
)

// Pattern is a receive request.
type Pattern struct {
	Kind PatternKind
	N    int
}

// Line reads one line without its terminator.
func Line() Pattern { return Pattern{Kind: PatternLine} }

// All reads until the peer closes its side.
func All() Pattern { return Pattern{Kind: PatternAll} }

// Bytes reads exactly n bytes.
func Bytes(n int) Pattern { return Pattern{Kind: PatternBytes, N: n} }

func (p Pattern) String() string {
	switch p.Kind {
	case PatternLine:
		return "*l"
	case PatternAll:
		return "*a"
	case PatternBytes:
		return strconv.Itoa(p.N)
	default:
		return fmt.Sprintf("pattern(%d)", p.Kind)
	}
}

// Validate reports whether p can be served.
func (p Pattern) Validate() error {
	switch p.Kind {
	case PatternLine, PatternAll:
		return nil
	case PatternBytes:
		if p.N < 0 {
			return fmt.Errorf("%w: negative byte count %d", ErrUnsupportedPattern, p.N)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPattern, p)
	}
}

// ParsePattern accepts the classic socket library spellings: "*l" or "*line",
// "*a" or "*all", and a decimal byte count. An empty string means a line.
func ParsePattern(s string) (Pattern, error) {
	switch {
	case s == "":
		return Line(), nil
	case strings.HasPrefix(s, "*l"):
		return Line(), nil
	case strings.HasPrefix(s, "*a"):
		return All(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Pattern{}, fmt.Errorf("%w: %q", ErrUnsupportedPattern, s)
	}
	return Bytes(n), nil
}
