package engine

import (
	"errors"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
)

const internalErrorMessage = "Internal server error"

type substitution struct {
	re   *regexp.Regexp
	repl string
}

// sanitizers strip schema internals from messages before they reach a
// client. The unredacted message is logged server-side.
var sanitizers = []substitution{
	// relation "sales", column "x" of relation "y", constraint "sales_pkey", ...
	{regexp.MustCompile(`(?i)\b(relation|column|constraint|table|schema|index|sequence|type|function|database)\s+"[^"]*"(\s*\.\s*"[^"]*")?`), "$1"},
	// unquoted qualified column references: column s.total does not exist
	{regexp.MustCompile(`(?i)\bcolumn\s+[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*`), "column"},
	{regexp.MustCompile(`(?i)\s*\(?\bSQLSTATE\s*[0-9A-Z]{5}\)?`), ""},
	{regexp.MustCompile(`(?i)\s*\bat character\s+\d+`), ""},
	{regexp.MustCompile(`(?i)\s*\bposition:?\s*\d+`), ""},
	{regexp.MustCompile(`(?i)\s*\bLINE\s+\d+:.*`), ""},
	{regexp.MustCompile(`\s*\(?[\w./-]+\.(go|c|h|js|ts|py):\d+\)?`), ""},
	{regexp.MustCompile(`(?i)\s*\b(file|line|routine):\s*\S+`), ""},
	{regexp.MustCompile(`^(?i)ERROR:\s*`), ""},
	{regexp.MustCompile(`\s{2,}`), " "},
}

// SanitizeMessage removes quoted object names, position hints, SQLSTATE
// codes and file:line references from msg.
func SanitizeMessage(msg string) string {
	for _, s := range sanitizers {
		msg = s.re.ReplaceAllString(msg, s.repl)
	}
	return strings.TrimSpace(msg)
}

// Classify maps an error to the HTTP status and client-safe message it
// should produce. Database errors about data shape (classes 22, 23, 42)
// surface as 400; every other unexpected failure is a generic 500.
func Classify(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, SanitizeMessage(appErr.Message)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case "22", "23", "42":
				return fiber.StatusBadRequest, SanitizeMessage(pgErr.Message)
			}
		}
		return fiber.StatusInternalServerError, internalErrorMessage
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}

	return fiber.StatusInternalServerError, internalErrorMessage
}
