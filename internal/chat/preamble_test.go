package chat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildSystemPrompt_IncludesExampleDialogue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "example.txt")
	if err := os.WriteFile(path, []byte("Student: What is recursion?\nTeacher: What happens when a mirror faces a mirror?"), 0644); err != nil {
		t.Fatalf("Failed to write example file: %v", err)
	}

	prompt := BuildSystemPrompt(path)
	if !strings.Contains(prompt, "Socratic teacher") {
		t.Error("Expected the instructional preamble")
	}
	if !strings.Contains(prompt, "What is recursion?") {
		t.Error("Expected the example dialogue to be included")
	}
}

func TestBuildSystemPrompt_MissingFileDegradesToPlaceholder(t *testing.T) {
	prompt := BuildSystemPrompt(filepath.Join(t.TempDir(), "missing.txt"))
	if !strings.Contains(prompt, examplePlaceholder) {
		t.Error("Expected placeholder text when the example file is missing")
	}
	if !strings.Contains(prompt, "Socratic teacher") {
		t.Error("Preamble must survive a missing example file")
	}
}
