package dispatcher

import (
	"net/url"
	"strings"
	"unicode"
)

// splitArgs tokenizes on whitespace; double quotes group words into one
// token. An unterminated quote runs to the end of input.
func splitArgs(raw string) []string {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
		started bool
	)

	flush := func() {
		if started {
			tokens = append(tokens, current.String())
		}
		current.Reset()
		started = false
	}

	for _, r := range raw {
		switch {
		case r == '"':
			if quoted {
				quoted = false
				flush()
				continue
			}
			flush()
			quoted = true
			started = true
		case unicode.IsSpace(r) && !quoted:
			flush()
		default:
			current.WriteRune(r)
			started = true
		}
	}
	flush()

	return tokens
}

// fitArgs folds extra tokens into the last of n arguments. It returns nil
// when fewer than n tokens are present.
func fitArgs(tokens []string, n int) []string {
	if n == 0 {
		return []string{}
	}
	if len(tokens) < n {
		return nil
	}
	if len(tokens) == n {
		return tokens
	}

	out := append([]string(nil), tokens[:n-1]...)
	return append(out, strings.Join(tokens[n-1:], " "))
}

var allowedSchemes = map[string]bool{"http": true, "https": true, "tg": true}

// validLink accepts absolute http, https and tg URLs.
func validLink(raw string) bool {
	if strings.ContainsAny(raw, " \t\n") {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil || !allowedSchemes[strings.ToLower(u.Scheme)] {
		return false
	}
	if u.Scheme == "tg" {
		return u.Host != "" || u.Opaque != ""
	}

	return u.Host != ""
}
