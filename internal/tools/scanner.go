// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

// =============================================================================
// QUOTE STATE MACHINE
// =============================================================================

// quoteState is the lexical state of the scanner.
type quoteState int

const (
	stateUnquoted quoteState = iota
	stateSingle
	stateDouble
)

// String returns the state name for diagnostics.
func (s quoteState) String() string {
	switch s {
	case stateUnquoted:
		return "unquoted"
	case stateSingle:
		return "single-quoted"
	case stateDouble:
		return "double-quoted"
	default:
		return "unknown"
	}
}

// Transition table (byte-oriented, all separators are ASCII):
//
//	state      input            next state   effect
//	---------  ---------------  -----------  ------------------------------
//	unquoted   \                unquoted     next byte is taken literally
//	unquoted   '                single
//	unquoted   "                double
//	unquoted   && || ; | \n     -            segment ends at this index
//	unquoted   other            unquoted
//	single     '                unquoted
//	single     other (incl. \)  single       backslash is literal
//	double     \                double       next byte is taken literally
//	double     "                unquoted
//	double     other            double
//
// A lone "&" (background job) is not a segment separator. A backslash before
// a newline is a line continuation, so the newline does not end the segment.

// step advances the machine over command[i] and returns the next state and
// how many bytes were consumed (2 when a backslash escapes the next byte).
func step(state quoteState, command string, i int) (quoteState, int) {
	c := command[i]
	switch state {
	case stateUnquoted:
		switch c {
		case '\\':
			return stateUnquoted, 2
		case '\'':
			return stateSingle, 1
		case '"':
			return stateDouble, 1
		}
	case stateSingle:
		if c == '\'' {
			return stateUnquoted, 1
		}
	case stateDouble:
		switch c {
		case '\\':
			return stateDouble, 2
		case '"':
			return stateUnquoted, 1
		}
	}
	return state, 1
}

// separatorAt returns the length of the segment separator starting at i,
// or 0 if there is none. Only meaningful in the unquoted state.
func separatorAt(command string, i int) int {
	switch command[i] {
	case ';', '\n':
		return 1
	case '|':
		if i+1 < len(command) && command[i+1] == '|' {
			return 2
		}
		return 1
	case '&':
		if i+1 < len(command) && command[i+1] == '&' {
			return 2
		}
	}
	return 0
}

// =============================================================================
// SEGMENT BOUNDARIES
// =============================================================================

// FindCommandEndIndex scans command from start and returns the byte index of
// the first unquoted separator ("&&", "||", ";", "|" or a newline), or
// len(command) if the segment runs to the end of the line.
//
// Example:
//
//	FindCommandEndIndex(`git commit -m "build && deploy"`, 0) // len(command)
//	FindCommandEndIndex(`git commit -m "msg" && echo done`, 0) // 20
func FindCommandEndIndex(command string, start int) int {
	if start < 0 {
		start = 0
	}
	state := stateUnquoted
	for i := start; i < len(command); {
		if state == stateUnquoted {
			if n := separatorAt(command, i); n > 0 {
				return i
			}
		}
		next, consumed := step(state, command, i)
		state = next
		i += consumed
	}
	return len(command)
}

// Segment is one command of a chained command line.
type Segment struct {
	// Start is the byte offset of the first byte of the segment.
	Start int

	// End is the byte offset of the separator that ends it (or len(line)).
	End int
}

// Text returns the segment's bytes within line.
func (s Segment) Text(line string) string {
	return line[s.Start:s.End]
}

// SplitSegments splits a command line into its chained segments. Separators
// are not part of any segment; quoting is preserved verbatim.
func SplitSegments(command string) []Segment {
	var segments []Segment
	start := 0
	for {
		end := FindCommandEndIndex(command, start)
		segments = append(segments, Segment{Start: start, End: end})
		if end >= len(command) {
			return segments
		}
		start = end + separatorAt(command, end)
	}
}

// =============================================================================
// TOKENS
// =============================================================================

// span is a half-open byte range within a segment.
type span struct {
	start int
	end   int
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// tokenize splits a single segment into words on unquoted blanks. Quotes are
// kept in the token text. balanced is false when the segment ends inside a
// quoted region or on a dangling backslash.
func tokenize(segment string) (tokens []span, balanced bool) {
	state := stateUnquoted
	start := -1
	dangling := false
	for i := 0; i < len(segment); {
		if state == stateUnquoted && isBlank(segment[i]) {
			if start >= 0 {
				tokens = append(tokens, span{start, i})
				start = -1
			}
			i++
			continue
		}
		if start < 0 {
			start = i
		}
		next, n := step(state, segment, i)
		if i+n > len(segment) {
			dangling = true
		}
		state = next
		i += n
	}
	if start >= 0 {
		tokens = append(tokens, span{start, len(segment)})
	}
	return tokens, state == stateUnquoted && !dangling
}

// isolatedQuote reports whether value is exactly one quoted region, such as
// "text" or 'text', and returns its quote byte. Values like "a"b or "a""b"
// are not isolated.
func isolatedQuote(value string) (byte, bool) {
	if len(value) < 2 || (value[0] != '"' && value[0] != '\'') {
		return 0, false
	}
	state, _ := step(stateUnquoted, value, 0)
	for i := 1; i < len(value); {
		next, n := step(state, value, i)
		if next == stateUnquoted {
			return value[0], i == len(value)-1
		}
		state = next
		i += n
	}
	return 0, false
}
