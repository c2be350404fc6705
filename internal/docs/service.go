// Package docs keeps each project's documentation as README.md in its own
// git repository so every save is a browsable version.
package docs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	fileName   = "README.md"
	mainBranch = "main"
)

var ErrNoDocumentation = errors.New("project has no documentation")

// Commit describes one saved version.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Save commits markdown as the new head. Saving unchanged content returns
// the current head and no error.
func (s *Service) Save(projectID, markdown, author, message string) (Commit, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	if message == "" {
		message = "Update documentation"
	}

	path := s.repoPath(projectID)
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return s.initRepo(path, markdown, author, message)
	}
	if err != nil {
		return Commit{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := s.commit(repo, markdown, author, message)
	if errors.Is(err, git.ErrEmptyCommit) {
		ref, refErr := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
		if refErr != nil {
			return Commit{}, fmt.Errorf("resolve branch %s: %w", mainBranch, refErr)
		}
		hash = ref.Hash()
	} else if err != nil {
		return Commit{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// Get returns the head version.
func (s *Service) Get(projectID string) (string, Commit, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(projectID)
	if err != nil {
		return "", Commit{}, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return "", Commit{}, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return "", Commit{}, fmt.Errorf("load commit object: %w", err)
	}
	markdown, err := readFromCommit(commitObj)
	if err != nil {
		return "", Commit{}, err
	}
	return markdown, toCommit(commitObj), nil
}

// Version returns the documentation as of a full or abbreviated hash.
func (s *Service) Version(projectID, hash string) (string, Commit, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(projectID)
	if err != nil {
		return "", Commit{}, err
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return "", Commit{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return "", Commit{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	markdown, err := readFromCommit(commitObj)
	if err != nil {
		return "", Commit{}, err
	}
	return markdown, toCommit(commitObj), nil
}

// History lists versions newest first. A limit of zero lists all of them.
func (s *Service) History(projectID string, limit int) ([]Commit, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(projectID)
	if errors.Is(err, ErrNoDocumentation) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0, max(limit, 0))
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) open(projectID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(projectID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoDocumentation
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) initRepo(path, markdown, author, message string) (Commit, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Commit{}, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return Commit{}, fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}
	hash, err := writeAndCommit(worktree, markdown, author, message, true)
	if err != nil {
		return Commit{}, err
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(mainBranch), hash)); err != nil {
		return Commit{}, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return Commit{}, fmt.Errorf("set HEAD to main: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, filepath.Base(filepath.Clean("/"+projectID)))
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[projectID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, markdown, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(mainBranch), Force: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("checkout branch %s: %w", mainBranch, err)
	}
	return writeAndCommit(worktree, markdown, author, message, false)
}

func writeAndCommit(worktree *git.Worktree, markdown, author, message string, allowEmpty bool) (plumbing.Hash, error) {
	root := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(root, fileName), []byte(markdown), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", fileName, err)
	}
	if _, err := worktree.Add(fileName); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add %s: %w", fileName, err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: allowEmpty,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.sprintboard.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit documentation: %w", err)
	}
	return hash, nil
}

func readFromCommit(commitObj *object.Commit) (string, error) {
	file, err := commitObj.File(fileName)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", fileName, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", fileName, err)
	}
	return contents, nil
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
