package engine

import "regexp"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether name may be used as a table or column name.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// QuoteIdent returns name wrapped in double quotes, or an INVALID_IDENTIFIER
// error if it does not match the safe pattern. Every table and column name
// goes through here before it is concatenated into SQL text.
func QuoteIdent(name string) (string, error) {
	if !IsIdentifier(name) {
		return "", InvalidIdentifierError(name)
	}
	return `"` + name + `"`, nil
}

// quoteAll validates and quotes a list of identifiers, failing on the first
// bad one.
func quoteAll(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		q, err := QuoteIdent(n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}
