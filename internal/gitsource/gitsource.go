package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
)

// Sync clones url into localPath, or fast-forwards an existing clone to the
// remote head. It returns the commit hash that is checked out afterwards.
func Sync(ctx context.Context, url, localPath string) (string, error) {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("cloning passage repository", "url", url, "path", localPath)
		repo, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: url})
		if err != nil {
			return "", fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
		return headHash(repo)

	case err == nil:
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return "", fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return "", fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			slog.Debug("passage repository already up to date", "path", localPath)
		} else if err != nil {
			return "", fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		} else {
			slog.Info("pulled passage repository", "url", url, "path", localPath)
		}
		return headHash(repo)

	default:
		return "", fmt.Errorf("error checking path %s: %w", localPath, err)
	}
}

func headHash(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
