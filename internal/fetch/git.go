package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// Git 使用 go-git 克隆或更新工作树，不依赖本机 git 可执行文件。
type Git struct {
	// Depth 仅在未指定 Ref 的首次克隆时生效；指定 Ref 时需要完整历史。
	Depth int
}

// NewGit 构造 git 拉取器。
func NewGit(depth int) *Git {
	return &Git{Depth: depth}
}

func (g *Git) Fetch(ctx context.Context, req Request) (Result, error) {
	repo, err := g.openOrClone(ctx, req)
	if err != nil {
		return Result{}, err
	}

	hash, err := resolveRef(repo, req.Ref)
	if err != nil {
		return Result{}, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Result{}, fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return Result{}, fmt.Errorf("checkout %s: %w", hash, err)
	}
	return Result{Revision: hash.String()}, nil
}

func (g *Git) openOrClone(ctx context.Context, req Request) (*git.Repository, error) {
	if _, err := os.Stat(filepath.Join(req.Dir, ".git")); err == nil {
		repo, err := git.PlainOpen(req.Dir)
		if err != nil {
			return nil, fmt.Errorf("open repo: %w", err)
		}
		// 复用已有工作树时确保 origin 指向本次请求的 URL。
		if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 && remote.Config().URLs[0] != req.URL {
			_ = repo.DeleteRemote("origin")
			if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{req.URL}}); err != nil {
				return nil, fmt.Errorf("reset origin: %w", err)
			}
		}
		err = repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: "origin",
			RefSpecs:   []gitconfig.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
			Tags:       git.AllTags,
			Force:      true,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
		}
		return repo, nil
	}

	if err := os.RemoveAll(req.Dir); err != nil {
		return nil, fmt.Errorf("remove stale worktree: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(req.Dir), 0o755); err != nil {
		return nil, err
	}
	opts := &git.CloneOptions{URL: req.URL, Tags: git.AllTags}
	if req.Ref == "" && g.Depth > 0 {
		opts.Depth = g.Depth
	}
	repo, err := git.PlainCloneContext(ctx, req.Dir, false, opts)
	if err != nil {
		os.RemoveAll(req.Dir)
		return nil, fmt.Errorf("clone %s: %w", req.URL, err)
	}
	// 记住远端默认分支，后续以分离 HEAD 更新时仍能找到"最新"。
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		_ = repo.Storer.SetReference(plumbing.NewSymbolicReference(
			plumbing.NewRemoteHEADReferenceName("origin"),
			plumbing.NewRemoteReferenceName("origin", head.Name().Short()),
		))
	}
	return repo, nil
}

// resolveRef 解析 ref：为空时取远端默认分支（退回当前 HEAD），
// 否则依次尝试 origin/<ref>、tag、完整或缩写的 commit hash。
func resolveRef(repo *git.Repository, ref string) (plumbing.Hash, error) {
	if ref == "" {
		if r, err := repo.Reference(plumbing.NewRemoteHEADReferenceName("origin"), true); err == nil {
			return r.Hash(), nil
		}
		if head, err := repo.Head(); err == nil {
			if head.Name().IsBranch() {
				if r, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", head.Name().Short()), true); err == nil {
					return r.Hash(), nil
				}
			}
			return head.Hash(), nil
		}
		return plumbing.ZeroHash, fmt.Errorf("%w: HEAD", ErrUnknownRef)
	}

	candidates := []plumbing.Revision{
		plumbing.Revision(plumbing.NewRemoteReferenceName("origin", ref)),
		plumbing.Revision(ref),
	}
	for _, rev := range candidates {
		hash, err := repo.ResolveRevision(rev)
		if err == nil && hash != nil {
			return *hash, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrUnknownRef, ref)
}
