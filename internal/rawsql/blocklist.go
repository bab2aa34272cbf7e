package rawsql

import (
	"regexp"
	"strings"
)

// Pattern is one named blocklist entry.
type Pattern struct {
	Name string
	re   *regexp.Regexp
}

func (p Pattern) Match(sql string) bool {
	return p.re.MatchString(sql)
}

func pattern(name, expr string) Pattern {
	return Pattern{Name: name, re: regexp.MustCompile(`(?i)` + expr)}
}

// Blocklist names the statements the raw-SQL gateway refuses to run. It is
// a mitigation list, not a security boundary: the endpoint also requires an
// elevated role. New entries are added as new abuse shows up.
var Blocklist = []Pattern{
	pattern("drop_object", `\bDROP\s+(TABLE|DATABASE|SCHEMA|INDEX|FUNCTION|TRIGGER|VIEW)\b`),
	pattern("truncate", `\bTRUNCATE\b`),
	pattern("grant", `\bGRANT\b`),
	pattern("revoke", `\bREVOKE\b`),
	pattern("copy", `\bCOPY\b`),
	pattern("dump_restore", `\bpg_(dump|dumpall|restore)\b`),
	pattern("execute_immediate", `\bEXECUTE\s+IMMEDIATE\b`),
	pattern("file_export", `\bINTO\s+(OUTFILE|DUMPFILE)\b`),
	pattern("large_object_export", `\blo_(export|import)\b`),
	pattern("server_file_read", `\bpg_(read_file|read_binary_file|ls_dir)\b`),
}

var (
	blockCommentRegex = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	lineCommentRegex  = regexp.MustCompile(`--[^\n]*`)
	whitespaceRegex   = regexp.MustCompile(`\s+`)
)

// Check returns the first blocklist entry sql matches, or nil. Both the
// trimmed text and a comment-stripped, whitespace-collapsed copy are
// scanned, so DROP/**/TABLE is caught as well.
func Check(sql string) *Pattern {
	trimmed := strings.TrimSpace(sql)
	normalized := whitespaceRegex.ReplaceAllString(stripSQLComments(trimmed), " ")

	for i := range Blocklist {
		p := &Blocklist[i]
		if p.Match(trimmed) || p.Match(normalized) {
			return p
		}
	}
	return nil
}

// stripSQLComments replaces /* */ and -- comments with a single space.
func stripSQLComments(sql string) string {
	sql = blockCommentRegex.ReplaceAllString(sql, " ")
	return lineCommentRegex.ReplaceAllString(sql, " ")
}
