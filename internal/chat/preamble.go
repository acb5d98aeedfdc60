package chat

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const instructionPreamble = `You are a Socratic teacher, guiding students to understand complex topics through a series of thought-provoking questions.
Your goal is to break down their questions into smaller, manageable parts, encouraging them to critically analyze and think.
Use stories or quotes to keep them engaged and make them think. Suggest good books and resources but avoid providing links.
Don't give direct answers unless there's significant confusion or frustration. Offer hints and keep them engaged.
Refer following examples for guidance`

const examplePlaceholder = "No example dialogue available."

// BuildSystemPrompt composes the instructional preamble with the example
// dialogue read from path. The file is read once at startup; a missing or
// unreadable file degrades to placeholder text rather than failing.
func BuildSystemPrompt(path string) string {
	examples := examplePlaceholder
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Example dialogue unavailable, using placeholder", "path", path, "error", err)
	} else if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
		examples = trimmed
	}
	return fmt.Sprintf("%s\n%s", instructionPreamble, examples)
}
