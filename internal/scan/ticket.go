package scan

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gapscan/internal/core/errors"
)

// FileTicketSource reads ticket text from a local file. The ticket ID is
// the file path.
type FileTicketSource struct{}

func (FileTicketSource) Fetch(ctx context.Context, ticketID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(ticketID)
	if err != nil {
		return "", errors.AddContext(
			errors.Wrap(err, errors.CodeNotFound, fmt.Sprintf("ticket file %q", ticketID)),
			errors.CtxPath, ticketID)
	}
	text := CleanTicketText(string(raw))
	if text == "" {
		return "", errors.AddContext(
			errors.New(errors.CodeValidation, "ticket file is empty"),
			errors.CtxPath, ticketID)
	}
	return text, nil
}

var (
	markupRe     = regexp.MustCompile(`\{(?:code|noformat|panel|quote)(?::[^}]*)?\}`)
	colorRe      = regexp.MustCompile(`\{color(?::[^}]*)?\}`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	trailingWsRe = regexp.MustCompile(`[ \t]+\n`)
)

// CleanTicketText strips tracker markup and normalizes whitespace so the
// intent extractor sees plain prose.
func CleanTicketText(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = markupRe.ReplaceAllString(text, "")
	text = colorRe.ReplaceAllString(text, "")
	text = trailingWsRe.ReplaceAllString(text, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
