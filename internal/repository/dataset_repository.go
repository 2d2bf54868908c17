// Package repository provides data access implementations
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

// DatasetStore materializes the versioned dataset locally
type DatasetStore interface {
	// Ensure brings the local working copy up to date with the remote,
	// cloning it when absent.
	Ensure(ctx context.Context) (WorkingCopy, error)
	// Location identifies the dataset this store serves.
	Location() string
}

// WorkingCopy is a local, disposable checkout of the dataset owned by one run
type WorkingCopy interface {
	Load() (*entities.Dataset, error)
	Publish(ctx context.Context, ds *entities.Dataset, message string) error
}

// GitDatasetOptions configures a GitDatasetStore
type GitDatasetOptions struct {
	RemoteURL   string
	Branch      string
	Dir         string // Local working copy path
	FileName    string // Dataset file relative to the repository root
	Depth       int    // Clone depth, 0 for full history
	AccessToken string
	AuthorName  string
	AuthorEmail string
}

// GitDatasetStore implements DatasetStore on top of a git remote
type GitDatasetStore struct {
	opts GitDatasetOptions
}

// NewGitDatasetStore creates a git-backed dataset store
func NewGitDatasetStore(opts GitDatasetOptions) (*GitDatasetStore, error) {
	if opts.RemoteURL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("working copy directory is required")
	}
	if opts.FileName == "" {
		return nil, fmt.Errorf("dataset file name is required")
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	return &GitDatasetStore{opts: opts}, nil
}

// Location returns the remote and working copy this store syncs
func (s *GitDatasetStore) Location() string {
	return s.opts.RemoteURL + "#" + s.opts.Branch + "@" + s.opts.Dir
}

func (s *GitDatasetStore) auth() transport.AuthMethod {
	if s.opts.AccessToken == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: s.opts.AccessToken}
}

func (s *GitDatasetStore) branchRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(s.opts.Branch)
}

// Ensure pulls the existing working copy or clones a fresh one. A working
// copy that cannot be opened or fast-forwarded is removed, so the next
// call starts from a clean clone.
func (s *GitDatasetStore) Ensure(ctx context.Context) (WorkingCopy, error) {
	if _, err := os.Stat(s.opts.Dir); err == nil {
		log.Printf("Working copy %s exists, pulling", s.opts.Dir)
		return s.pull(ctx)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat working copy: %v", err)
	}

	log.Printf("Working copy %s does not exist, cloning %s", s.opts.Dir, s.opts.RemoteURL)
	return s.clone(ctx)
}

func (s *GitDatasetStore) remoteRef() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(git.DefaultRemoteName, s.opts.Branch)
}

// pull fetches the branch at the configured depth and hard-resets the
// worktree onto it. Pulling through the worktree cannot fast-forward a
// shallow copy across more than one commit, so the fetch and the
// fast-forward are done separately.
func (s *GitDatasetStore) pull(ctx context.Context) (WorkingCopy, error) {
	repo, err := git.PlainOpen(s.opts.Dir)
	if err != nil {
		s.discard()
		return nil, fmt.Errorf("%w: failed to open working copy: %v", entities.ErrSyncConflict, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		s.discard()
		return nil, fmt.Errorf("%w: failed to open worktree: %v", entities.ErrSyncConflict, err)
	}

	head, err := repo.Head()
	if err != nil {
		s.discard()
		return nil, fmt.Errorf("%w: failed to resolve HEAD: %v", entities.ErrSyncConflict, err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", s.branchRef(), s.remoteRef()))
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Depth:      s.opts.Depth,
		Auth:       s.auth(),
		Tags:       git.NoTags,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		s.discard()
		return nil, fmt.Errorf("failed to fetch %s: %v", s.opts.RemoteURL, err)
	}

	remote, err := repo.Reference(s.remoteRef(), true)
	if err != nil {
		s.discard()
		return nil, fmt.Errorf("%w: failed to resolve %s: %v", entities.ErrSyncConflict, s.remoteRef(), err)
	}

	if remote.Hash() == head.Hash() {
		log.Printf("Working copy already up to date")
		return &gitWorkingCopy{store: s, repo: repo}, nil
	}

	if err := s.checkFastForward(repo, head.Hash(), remote.Hash()); err != nil {
		s.discard()
		return nil, err
	}

	if err := wt.Reset(&git.ResetOptions{Commit: remote.Hash(), Mode: git.HardReset}); err != nil {
		s.discard()
		return nil, fmt.Errorf("%w: failed to reset to %s: %v", entities.ErrSyncConflict, remote.Hash(), err)
	}
	log.Printf("Working copy fast-forwarded to %s", remote.Hash().String()[:7])

	return &gitWorkingCopy{store: s, repo: repo}, nil
}

// checkFastForward fails with ErrSyncConflict when local is provably not an
// ancestor of remote. A shallow history that ends before reaching local
// cannot prove either way; the local copy only ever holds pushed commits,
// so that case is treated as a fast-forward.
func (s *GitDatasetStore) checkFastForward(repo *git.Repository, local, remote plumbing.Hash) error {
	seen := map[plumbing.Hash]bool{remote: true}
	queue := []plumbing.Hash{remote}
	truncated := false

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == local {
			return nil
		}

		c, err := repo.CommitObject(h)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			truncated = true
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: failed to read commit %s: %v", entities.ErrSyncConflict, h, err)
		}
		for _, p := range c.ParentHashes {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}

	if truncated {
		log.Printf("History of %s is shallow, assuming fast-forward from %s", remote.String()[:7], local.String()[:7])
		return nil
	}
	return fmt.Errorf("%w: %v", entities.ErrSyncConflict, git.ErrNonFastForwardUpdate)
}

func (s *GitDatasetStore) clone(ctx context.Context) (WorkingCopy, error) {
	if err := os.MkdirAll(filepath.Dir(s.opts.Dir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create working copy parent: %v", err)
	}

	repo, err := git.PlainCloneContext(ctx, s.opts.Dir, false, &git.CloneOptions{
		URL:           s.opts.RemoteURL,
		Auth:          s.auth(),
		RemoteName:    git.DefaultRemoteName,
		ReferenceName: s.branchRef(),
		SingleBranch:  true,
		Depth:         s.opts.Depth,
		Tags:          git.NoTags,
	})
	if err != nil {
		s.discard()
		return nil, fmt.Errorf("failed to clone %s: %v", s.opts.RemoteURL, err)
	}

	return &gitWorkingCopy{store: s, repo: repo}, nil
}

func (s *GitDatasetStore) discard() {
	log.Printf("Discarding working copy %s", s.opts.Dir)
	if err := os.RemoveAll(s.opts.Dir); err != nil {
		log.Printf("Warning: failed to remove working copy %s: %v", s.opts.Dir, err)
	}
}

type gitWorkingCopy struct {
	store *GitDatasetStore
	repo  *git.Repository
}

func (wc *gitWorkingCopy) path() string {
	return filepath.Join(wc.store.opts.Dir, wc.store.opts.FileName)
}

// Load parses the dataset file. A missing file is an empty dataset.
func (wc *gitWorkingCopy) Load() (*entities.Dataset, error) {
	f, err := os.Open(wc.path())
	if os.IsNotExist(err) {
		log.Printf("Dataset file %s not found, starting from an empty dataset", wc.store.opts.FileName)
		return &entities.Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %v", err)
	}
	defer f.Close()

	ds, err := DecodeDataset(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", wc.store.opts.FileName, err)
	}
	return ds, nil
}

// Publish writes the dataset, commits it and pushes the branch. On any
// failure the working copy is discarded because it no longer matches the
// remote.
func (wc *gitWorkingCopy) Publish(ctx context.Context, ds *entities.Dataset, message string) error {
	if err := wc.publish(ctx, ds, message); err != nil {
		wc.store.discard()
		return err
	}
	return nil
}

func (wc *gitWorkingCopy) publish(ctx context.Context, ds *entities.Dataset, message string) error {
	data, err := MarshalDataset(ds)
	if err != nil {
		return fmt.Errorf("failed to serialize dataset: %w", err)
	}
	if err := os.WriteFile(wc.path(), data, 0644); err != nil {
		return fmt.Errorf("failed to write dataset: %v", err)
	}

	wt, err := wc.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %v", err)
	}
	if _, err := wt.Add(filepath.ToSlash(wc.store.opts.FileName)); err != nil {
		return fmt.Errorf("failed to stage %s: %v", wc.store.opts.FileName, err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  wc.store.opts.AuthorName,
			Email: wc.store.opts.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %v", err)
	}
	log.Printf("Committed %s: %s", hash.String()[:7], message)

	ref := wc.store.branchRef()
	err = wc.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(ref + ":" + ref)},
		Auth:       wc.store.auth(),
	})
	switch {
	case err == nil:
		log.Printf("Pushed %s to %s", ref.Short(), wc.store.opts.RemoteURL)
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case isPushRejection(err):
		return fmt.Errorf("%w: %v", entities.ErrPublishRejected, err)
	default:
		return fmt.Errorf("failed to push: %v", err)
	}
}

func isPushRejection(err error) bool {
	if errors.Is(err, git.ErrNonFastForwardUpdate) || errors.Is(err, git.ErrForceNeeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "rejected")
}
