package keywords

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadResume_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.txt")
	if err := os.WriteFile(path, []byte("Go developer, five years."), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := ReadResume(path)
	if err != nil {
		t.Fatalf("ReadResume: %v", err)
	}
	if text != "Go developer, five years." {
		t.Errorf("text = %q", text)
	}
}

func TestReadResume_UnknownExtensionTreatedAsText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.md")
	if err := os.WriteFile(path, []byte("# Resume"), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := ReadResume(path)
	if err != nil {
		t.Fatalf("ReadResume: %v", err)
	}
	if text != "# Resume" {
		t.Errorf("text = %q", text)
	}
}

func TestReadResume_Missing(t *testing.T) {
	if _, err := ReadResume(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadResume_CorruptPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(path, []byte("not actually a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadResume(path); err == nil {
		t.Error("expected error for corrupt pdf")
	}
}
