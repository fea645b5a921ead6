package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSVPicksColumn(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "news.csv", "id,title,url\n1,hello world,x\n2,  ,y\n3,second title,z\n")
	got, err := LoadCSV(path, "title")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"hello world", "second title"}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadCSVMissingColumn(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "news.csv", "id,title\n1,a\n")
	if _, err := LoadCSV(path, "body"); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestLoadCSVEmpty(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "empty.csv", "title\n\n")
	if _, err := LoadCSV(path, "title"); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("err = %v, want ErrNoSamples", err)
	}
}

func TestLoadLines(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "corpus.txt", "first\n\n  second  \n")
	got, err := LoadLines(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("got %v", got)
	}
}

func TestLoadDispatchesOnExtension(t *testing.T) {
	t.Parallel()
	csvPath := writeFile(t, "data.CSV", "title\nabc\n")
	got, err := Load(csvPath, "title")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "abc" {
		t.Fatalf("got %v", got)
	}
}
