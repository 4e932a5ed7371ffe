package db

import "strings"

type sqlSplitState struct {
	inSingleQuote  bool
	inDoubleQuote  bool
	inLineComment  bool
	inBlockComment bool
	dollarTag      string
}

// splitSQLStatements splits a script on top-level semicolons. Comments are
// dropped; quoted strings, quoted identifiers and dollar-quoted bodies are
// kept intact.
func splitSQLStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	state := &sqlSplitState{}

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(content); i++ {
		ch := content[i]

		switch {
		case state.inLineComment:
			if ch == '\n' {
				state.inLineComment = false
				current.WriteByte(ch)
			}
			continue
		case state.inBlockComment:
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				state.inBlockComment = false
				i++
			}
			continue
		case state.dollarTag != "":
			if strings.HasPrefix(content[i:], state.dollarTag) {
				current.WriteString(state.dollarTag)
				i += len(state.dollarTag) - 1
				state.dollarTag = ""
				continue
			}
			current.WriteByte(ch)
			continue
		case state.inSingleQuote:
			current.WriteByte(ch)
			if ch == '\'' {
				state.inSingleQuote = false
			}
			continue
		case state.inDoubleQuote:
			current.WriteByte(ch)
			if ch == '"' {
				state.inDoubleQuote = false
			}
			continue
		}

		switch ch {
		case '-':
			if i+1 < len(content) && content[i+1] == '-' {
				state.inLineComment = true
				i++
				continue
			}
		case '/':
			if i+1 < len(content) && content[i+1] == '*' {
				state.inBlockComment = true
				i++
				continue
			}
		case '\'':
			state.inSingleQuote = true
		case '"':
			state.inDoubleQuote = true
		case '$':
			if tag := dollarTagAt(content[i:]); tag != "" {
				state.dollarTag = tag
				current.WriteString(tag)
				i += len(tag) - 1
				continue
			}
		case ';':
			flush()
			continue
		}
		current.WriteByte(ch)
	}
	flush()

	return statements
}

// dollarTagAt returns the opening tag ($$ or $name$) at the start of s.
func dollarTagAt(s string) string {
	if len(s) < 2 || s[0] != '$' {
		return ""
	}
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1]
		}
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (j > 1 && c >= '0' && c <= '9')) {
			return ""
		}
	}
	return ""
}
