// internal/rules/tokenize.go
package rules

import (
	"strings"

	"github.com/solatis/weaver/internal/types"
)

/*
 * Config line tokenizer.
 *
 * A config line has the shape
 *
 *   <Owner>.<member> <before|after|finally|ExceptionType> "<code>"
 *
 * Tokens are runs of non-space, non-quote characters, or runs delimited by
 * matching double or single quotes (quotes dropped). A '#' outside quotes
 * starts a comment; a line whose first non-space character is '#' is a
 * comment line. Code tokens may therefore contain '#' when quoted.
 *
 * Token floor: owner.member, action and code are all mandatory. Lines with
 * 1-2 tokens are errors, never skipped.
 */

const commentChar = '#'

// MinTokens is the number of tokens of a valid rule line.
const MinTokens = 3

// Tokenize splits one config line. Blank and comment lines yield no tokens
// and no error.
func Tokenize(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == commentChar {
		return nil, nil
	}

	var tokens []string
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == commentChar:
			i = len(line)
		case isSpace(c):
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(line[i+1:], c)
			if end < 0 {
				return nil, types.ErrUnterminatedQuote
			}
			tokens = append(tokens, line[i+1:i+1+end])
			i += end + 2
		default:
			start := i
			for i < len(line) && !isDelimiter(line[i]) {
				i++
			}
			tokens = append(tokens, line[start:i])
		}
	}

	if len(tokens) > 0 && len(tokens) < MinTokens {
		return nil, types.ErrInvalidLine
	}
	return tokens, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v'
}

func isDelimiter(c byte) bool {
	return c == '"' || c == '\'' || c == commentChar || isSpace(c)
}

// normalizeCode joins the code tokens and collapses whitespace runs to
// single spaces.
func normalizeCode(tokens []string) string {
	return collapseSpaces(strings.Join(tokens, " "))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
