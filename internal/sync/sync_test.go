package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/yomu/internal/domain"
	"github.com/conorfennell/yomu/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func TestSourceType(t *testing.T) {
	testCases := []struct {
		path     string
		expected string
	}{
		{"https://github.com/me/texts.git", storage.SourceGit},
		{"https://github.com/me/texts", storage.SourceGit},
		{"git@github.com:me/texts.git", storage.SourceGit},
		{"/home/me/texts.git", storage.SourceGit},
		{"/home/me/texts", storage.SourceLocal},
		{"texts", storage.SourceLocal},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			if got := SourceType(tc.path); got != tc.expected {
				t.Errorf("Expected %q, but got %q", tc.expected, got)
			}
		})
	}
}

func TestGitURLToLocalPath(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		expected string
	}{
		{"https url", "https://github.com/me/texts.git", filepath.Join("repos", "github.com", "me", "texts")},
		{"https url without suffix", "https://gitlab.com/group/sub/texts", filepath.Join("repos", "gitlab.com", "group", "sub", "texts")},
		{"scp style", "git@github.com:me/texts.git", filepath.Join("repos", "github.com", "me", "texts")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GitURLToLocalPath("repos", tc.url)
			if err != nil {
				t.Fatalf("GitURLToLocalPath() returned an unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %q, but got %q", tc.expected, got)
			}
		})
	}

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := GitURLToLocalPath("repos", "not a url"); err == nil {
			t.Error("Expected an error, but got nil")
		}
	})

	escapes := []string{
		"git@github.com:../../../../tmp/evil.git",
		"https://github.com/../../../../etc/x.git",
		"git@..:x.git",
		"https://github.com/me/../../../outside.git",
		"https://github.com/..",
	}
	for _, raw := range escapes {
		t.Run("rejects "+raw, func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "repos")
			got, err := GitURLToLocalPath(base, raw)
			if err == nil {
				t.Errorf("Expected an error, but got path %q", got)
			}
		})
	}
}

func TestAddSource(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()

	id, err := AddSource(ctx, db, dir)
	if err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}

	again, err := AddSource(ctx, db, dir)
	if err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	if again != id {
		t.Errorf("Expected the existing source id %d, but got %d", id, again)
	}

	source, err := db.FindSourceByPath(ctx, dir)
	if err != nil || source == nil {
		t.Fatalf("Expected source to be stored, got %v, %v", source, err)
	}
	if source.Type != storage.SourceLocal {
		t.Errorf("Expected type %q, but got %q", storage.SourceLocal, source.Type)
	}

	t.Run("missing directory", func(t *testing.T) {
		if _, err := AddSource(ctx, db, filepath.Join(dir, "missing")); err == nil {
			t.Error("Expected an error, but got nil")
		}
	})

	t.Run("file instead of directory", func(t *testing.T) {
		writeFile(t, dir, "a.md", "本")
		if _, err := AddSource(ctx, db, filepath.Join(dir, "a.md")); err == nil {
			t.Error("Expected an error, but got nil")
		}
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	writeFile(t, dir, "weather.md", "# 雨\n雨が降る。\n---\n# 雪\n雪が降る。")
	writeFile(t, dir, "nested/cat.txt", "猫がいる。")
	writeFile(t, dir, "notes.json", `{"ignored": true}`)
	writeFile(t, dir, ".git/HEAD", "ref: refs/heads/main")

	id, err := AddSource(ctx, db, dir)
	if err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	source, err := db.FindSourceByPath(ctx, dir)
	if err != nil || source == nil {
		t.Fatalf("Expected source %d to be stored, got %v, %v", id, source, err)
	}

	report, err := Reconcile(ctx, db, *source, dir, now)
	if err != nil {
		t.Fatalf("Reconcile() returned an unexpected error: %v", err)
	}
	if report.Parsed != 3 || report.Written != 3 || report.Removed != 0 {
		t.Errorf("Expected 3 parsed and written, but got %+v", report)
	}

	texts, err := db.TextsBySource(ctx, source.ID)
	if err != nil {
		t.Fatalf("TextsBySource() returned an unexpected error: %v", err)
	}
	titles := make(map[string]string)
	for _, text := range texts {
		titles[text.Title] = text.ID
	}
	for _, title := range []string{"雨", "雪", "cat"} {
		if _, ok := titles[title]; !ok {
			t.Errorf("Expected a text titled %q, got %v", title, titles)
		}
	}

	t.Run("second pass is a no-op", func(t *testing.T) {
		report, err := Reconcile(ctx, db, *source, dir, now.Add(time.Hour))
		if err != nil {
			t.Fatalf("Reconcile() returned an unexpected error: %v", err)
		}
		if report.Written != 0 || report.Unchanged != 3 {
			t.Errorf("Expected 3 unchanged passages, but got %+v", report)
		}
	})

	t.Run("edits keep ids and removals delete texts", func(t *testing.T) {
		writeFile(t, dir, "weather.md", "# 雨\n雨がやんだ。")
		report, err := Reconcile(ctx, db, *source, dir, now.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("Reconcile() returned an unexpected error: %v", err)
		}
		if report.Written != 1 || report.Removed != 1 {
			t.Errorf("Expected 1 written and 1 removed, but got %+v", report)
		}

		rain, err := db.FindTextByID(ctx, titles["雨"])
		if err != nil || rain == nil {
			t.Fatalf("Expected the rain passage to keep its id, got %v, %v", rain, err)
		}
		if rain.Content != "雨がやんだ。" {
			t.Errorf("Expected updated content, but got %q", rain.Content)
		}
		if snow, _ := db.FindTextByID(ctx, titles["雪"]); snow != nil {
			t.Errorf("Expected the snow passage to be deleted, but got %+v", snow)
		}
	})

	t.Run("last scanned is recorded", func(t *testing.T) {
		updated, err := db.FindSourceByPath(ctx, dir)
		if err != nil || updated == nil {
			t.Fatalf("FindSourceByPath() returned %v, %v", updated, err)
		}
		if !updated.LastScannedAt().Equal(now.Add(2 * time.Hour)) {
			t.Errorf("Expected last scanned %v, but got %v", now.Add(2*time.Hour), updated.LastScannedAt())
		}
	})
}

func TestReconcileDuplicateTitles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "# 同じ\n一つ目。\n---\n# 同じ\n二つ目。")

	if _, err := AddSource(ctx, db, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	source, _ := db.FindSourceByPath(ctx, dir)

	report, err := Reconcile(ctx, db, *source, dir, time.Now())
	if err != nil {
		t.Fatalf("Reconcile() returned an unexpected error: %v", err)
	}
	if report.Written != 2 {
		t.Errorf("Expected both passages to be stored, but got %+v", report)
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	t.Run("no sources", func(t *testing.T) {
		reports, err := Run(ctx, db, t.TempDir())
		if err != nil {
			t.Fatalf("Run() returned an unexpected error: %v", err)
		}
		if len(reports) != 0 {
			t.Errorf("Expected no reports, but got %d", len(reports))
		}
	})

	t.Run("local source", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.md", "# 朝\nおはよう。")
		if _, err := AddSource(ctx, db, dir); err != nil {
			t.Fatalf("AddSource() returned an unexpected error: %v", err)
		}

		reports, err := Run(ctx, db, t.TempDir())
		if err != nil {
			t.Fatalf("Run() returned an unexpected error: %v", err)
		}
		if len(reports) != 1 || reports[0].Written != 1 {
			t.Errorf("Expected one report with one passage, but got %+v", reports)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := Run(cancelled, db, t.TempDir()); err == nil {
			t.Error("Expected an error, but got nil")
		}
	})
}

func TestRemoveSource(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "# 朝\nおはよう。")

	if _, err := AddSource(ctx, db, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	source, _ := db.FindSourceByPath(ctx, dir)
	if _, err := Reconcile(ctx, db, *source, dir, time.Now()); err != nil {
		t.Fatalf("Reconcile() returned an unexpected error: %v", err)
	}

	if err := RemoveSource(ctx, db, dir); err != nil {
		t.Fatalf("RemoveSource() returned an unexpected error: %v", err)
	}
	texts, err := db.ListTexts(ctx)
	if err != nil {
		t.Fatalf("ListTexts() returned an unexpected error: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("Expected passages of the source to be removed, but got %d", len(texts))
	}

	err = RemoveSource(ctx, db, dir)
	if !errors.Is(err, storage.ErrSourceNotFound) {
		t.Errorf("Expected ErrSourceNotFound, but got %v", err)
	}
}

func TestReconcileKeepsPassagesOfUnparsableFile(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	writeFile(t, dir, "a.md", "# One\n一つ目。")

	if _, err := AddSource(ctx, db, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	source, _ := db.FindSourceByPath(ctx, dir)
	if _, err := Reconcile(ctx, db, *source, dir, now); err != nil {
		t.Fatalf("Reconcile() returned an unexpected error: %v", err)
	}

	// A line past the scanner limit makes the file unparsable.
	writeFile(t, dir, "a.md", "# One\n"+strings.Repeat("あ", 1<<20))
	report, err := Reconcile(ctx, db, *source, dir, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Reconcile() returned an unexpected error: %v", err)
	}
	if len(report.Errors) != 1 {
		t.Errorf("Expected 1 parse error, but got %v", report.Errors)
	}
	if report.Removed != 0 {
		t.Errorf("Expected no removals, but got %d", report.Removed)
	}

	texts, err := db.TextsBySource(ctx, source.ID)
	if err != nil {
		t.Fatalf("TextsBySource() returned an unexpected error: %v", err)
	}
	if len(texts) != 1 || texts[0].Content != "一つ目。" {
		t.Errorf("Expected the previous passage to survive, but got %+v", texts)
	}
}

func TestReconcileKeepsUserEdits(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	writeFile(t, dir, "a.md", "# 文\n原文")

	if _, err := AddSource(ctx, db, dir); err != nil {
		t.Fatalf("AddSource() returned an unexpected error: %v", err)
	}
	source, _ := db.FindSourceByPath(ctx, dir)
	if _, err := Reconcile(ctx, db, *source, dir, now); err != nil {
		t.Fatalf("Reconcile() returned an unexpected error: %v", err)
	}
	texts, _ := db.TextsBySource(ctx, source.ID)
	if len(texts) != 1 {
		t.Fatalf("Expected 1 imported text, but got %d", len(texts))
	}
	id := texts[0].ID

	if _, _, err := db.SaveText(ctx, domain.Text{ID: id, Title: "文", Content: "ユーザーの編集"}, now.Add(time.Minute)); err != nil {
		t.Fatalf("SaveText() returned an unexpected error: %v", err)
	}

	report, err := Reconcile(ctx, db, *source, dir, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Reconcile() returned an unexpected error: %v", err)
	}
	if report.Written != 0 || report.Removed != 0 {
		t.Errorf("Expected the edited passage to be left alone, but got %+v", report)
	}

	stored, err := db.FindTextByID(ctx, id)
	if err != nil || stored == nil {
		t.Fatalf("Expected to find the text, got %v, %v", stored, err)
	}
	if stored.Content != "ユーザーの編集" {
		t.Errorf("Expected the edit to survive a sync, but got %q", stored.Content)
	}
}
