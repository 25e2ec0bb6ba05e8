package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/yomu/internal/fingerprint"
	"github.com/conorfennell/yomu/internal/gitsource"
	"github.com/conorfennell/yomu/internal/passage"
	"github.com/conorfennell/yomu/internal/storage"
)

// Report summarizes the reconciliation of one source.
type Report struct {
	SourceID  int64
	Parsed    int
	Written   int
	Unchanged int
	Removed   int
	Errors    []error
}

// SourceType guesses whether path is a git URL or a local directory.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return storage.SourceGit
	}
	return storage.SourceLocal
}

// AddSource registers path as a passage source. Local paths are made
// absolute and must be directories.
func AddSource(ctx context.Context, db *storage.DB, path string) (int64, error) {
	sourceType := SourceType(path)
	if sourceType == storage.SourceLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", abs, err)
		}
		if !info.IsDir() {
			return 0, fmt.Errorf("%s is not a directory", abs)
		}
		path = abs
	}

	existing, err := db.FindSourceByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	return db.InsertSource(ctx, path, sourceType)
}

// RemoveSource deletes the source registered under path together with its
// passages. Local paths are resolved the same way AddSource resolves them.
func RemoveSource(ctx context.Context, db *storage.DB, path string) error {
	if SourceType(path) == storage.SourceLocal {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	source, err := db.FindSourceByPath(ctx, path)
	if err != nil {
		return err
	}
	if source == nil {
		return fmt.Errorf("source %s: %w", path, storage.ErrSourceNotFound)
	}
	return db.DeleteSource(ctx, source.ID)
}

// Run iterates over all sources and reconciles them. A failing source is
// logged and skipped; only a failure to list sources aborts the run.
func Run(ctx context.Context, db *storage.DB, reposDir string) ([]Report, error) {
	slog.Info("Starting sync process for all sources...")
	sources, err := db.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with: yomu add-source <path/or/url.git>")
		return nil, nil
	}

	var reports []Report
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == storage.SourceGit {
			localRepoPath, err := GitURLToLocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localRepoPath), 0o755); err != nil {
				slog.Error("Failed to create repos directory", "path", localRepoPath, "error", err)
				continue
			}
			if _, err := gitsource.Sync(ctx, source.Path, localRepoPath); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				continue
			}
			dir = localRepoPath
		}

		report, err := Reconcile(ctx, db, source, dir, time.Now())
		if err != nil {
			slog.Error("Error reconciling source", "id", source.ID, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	slog.Info("Sync process complete.")
	return reports, nil
}

// Reconcile imports every passage file under dir as texts of source and
// removes texts of source whose passage no longer exists.
func Reconcile(ctx context.Context, db *storage.DB, source storage.Source, dir string, now time.Time) (Report, error) {
	report := Report{SourceID: source.ID}
	found := make(map[string]bool)
	unreadable := 0

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isPassageFile(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		texts, parseErr := passage.ParseFile(path)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", rel, parseErr))
			unreadable++
			return nil
		}

		seen := make(map[string]int)
		for _, text := range texts {
			seen[text.Title]++
			if n := seen[text.Title]; n > 1 {
				text.ID = fingerprint.Hash(source.Path, filepath.ToSlash(rel), text.Title, strconv.Itoa(n))
			} else {
				text.ID = fingerprint.Hash(source.Path, filepath.ToSlash(rel), text.Title)
			}
			text.SourceID = source.ID
			report.Parsed++
			found[text.ID] = true

			written, putErr := db.PutSourcedText(ctx, text, now)
			if putErr != nil {
				report.Errors = append(report.Errors, fmt.Errorf("db put for %s: %w", text.ID, putErr))
				continue
			}
			if written {
				slog.Info("Passage imported", "id", text.ID, "title", text.Title)
				report.Written++
			} else {
				report.Unchanged++
			}
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	existing, err := db.TextsBySource(ctx, source.ID)
	if err != nil {
		return report, fmt.Errorf("error getting texts for source %d: %w", source.ID, err)
	}
	// Ids of passages in an unreadable file are unknown, so nothing can be
	// called an orphan this round.
	if unreadable > 0 {
		slog.Warn("Skipping orphan removal, some files could not be parsed", "source_id", source.ID, "files", unreadable)
		existing = nil
	}
	for _, text := range existing {
		if found[text.ID] {
			continue
		}
		slog.Info("Orphaned passage, deleting", "id", text.ID, "title", text.Title)
		if err := db.DeleteText(ctx, text.ID); err != nil && !errors.Is(err, storage.ErrTextNotFound) {
			slog.Warn("Failed to delete orphaned passage", "id", text.ID, "error", err)
			continue
		}
		report.Removed++
	}

	if err := db.UpdateSourceLastScanned(ctx, source.ID, now); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", dir,
		"parsed", report.Parsed,
		"written", report.Written,
		"removed", report.Removed,
		"errors", len(report.Errors),
	)
	return report, nil
}

func isPassageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".txt":
		return true
	}
	return false
}

// GitURLToLocalPath maps an https or scp-style git URL to a directory under
// baseDir, e.g. git@github.com:me/texts.git -> baseDir/github.com/me/texts.
func GitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return joinUnder(baseDir, host, repoPath)
				}
			}
		}
		if info, statErr := os.Stat(repoURL); statErr == nil && info.IsDir() {
			// A local repository path ending in .git.
			return filepath.Join(baseDir, "local", fingerprint.Hash(repoURL)[:16]), nil
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return joinUnder(baseDir, parsedURL.Host, sanitizedPath)
}

// joinUnder joins host and repoPath onto baseDir and rejects results that
// escape baseDir or collapse onto it.
func joinUnder(baseDir, host, repoPath string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("git URL has no host")
	}
	for _, elem := range []string{host, repoPath} {
		for _, seg := range strings.Split(filepath.ToSlash(elem), "/") {
			if seg == ".." {
				return "", fmt.Errorf("git URL path %q leaves the repos directory", elem)
			}
		}
	}

	p := filepath.Join(baseDir, host, repoPath)
	rel, err := filepath.Rel(baseDir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("git URL %s/%s leaves the repos directory", host, repoPath)
	}
	return p, nil
}
