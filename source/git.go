package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"pkgsynth/plan"
)

// GitFetcher implements RepositoryFetcher, PackageCheckout, and
// VCSCheckout for git-type repository locations, using go-git in place
// of shelling out to a system git binary.
type GitFetcher struct {
	// ReposDir is the repositories directory: one subdirectory per
	// RepositoryState(location, TypeGit).
	ReposDir string
	Cache    *CheckoutCache
	Timeout  int // seconds; zero means no deadline beyond ctx's own
}

// NewGitFetcher creates a fetcher rooted at reposDir, initializing its
// own checkout cache.
func NewGitFetcher(reposDir string) *GitFetcher {
	return &GitFetcher{ReposDir: reposDir, Cache: NewCheckoutCache()}
}

// FetchRepository clones or fetches location into its repository-state
// directory and derives one fragment per commit reachable from HEAD,
// in chronological order.
func (g *GitFetcher) FetchRepository(ctx context.Context, location string, shallow bool, reason FetchReason) ([]Fragment, error) {
	state := RepositoryState(location, TypeGit)
	dir := filepath.Join(g.ReposDir, state)

	var repo *git.Repository
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		r, err := git.PlainOpen(dir)
		if err != nil {
			return nil, &FetchError{Kind: MetadataInvalid, Location: location, Err: err}
		}
		remote, err := r.Remote("origin")
		if err != nil {
			return nil, &FetchError{Kind: MetadataInvalid, Location: location, Err: err}
		}
		fetchOpts := &git.FetchOptions{RemoteName: remote.Config().Name}
		if err := remote.FetchContext(ctx, fetchOpts); err != nil && err != git.NoErrAlreadyUpToDate {
			return nil, classifyGitError(location, err)
		}
		repo = r
	} else {
		if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
			return nil, &FetchError{Kind: NetworkError, Location: location, Err: err}
		}
		cloneOpts := &git.CloneOptions{URL: location}
		if shallow {
			cloneOpts.Depth = 1
		}
		r, err := git.PlainCloneContext(ctx, dir, false, cloneOpts)
		if err != nil {
			return nil, classifyGitError(location, err)
		}
		repo = r
	}

	fragments, err := g.fragmentsFromCommits(repo, location)
	if err != nil {
		return nil, err
	}

	if data, err := g.readManifest(dir); err == nil {
		for i := range fragments {
			packages, err := LoadManifestYAML(data, fragments[i].ID)
			if err != nil {
				return nil, err
			}
			fragments[i].Packages = packages
		}
	}

	return fragments, nil
}

// readManifest reads <dir>/packages.yaml, the stand-in format this
// repository uses in place of parsing a real build2 manifest (out of
// the planner's scope). A missing file is not an error:
// plenty of fetched repositories serve only as prerequisite/complement
// targets and advertise no packages of their own. Every fragment of a
// single fetch shares this same manifest snapshot — the real tool
// diffs manifests per-commit, but that level of fidelity is not needed
// here since the core never calls fetch_repository itself.
func (g *GitFetcher) readManifest(dir string) ([]byte, error) {
	path := filepath.Join(dir, "packages.yaml")
	return os.ReadFile(path)
}

func classifyGitError(location string, err error) *FetchError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authentication"), strings.Contains(msg, "auth"):
		return &FetchError{Kind: AuthError, Location: location, Err: err}
	default:
		return &FetchError{Kind: NetworkError, Location: location, Err: err}
	}
}

// fragmentsFromCommits walks HEAD's commit history, oldest first,
// producing one fragment per commit. Package manifests are not parsed
// here (out of this repository's scope, per the planner's "core
// doesn't parse build2 manifest" boundary) so each fragment's Packages
// is left for a caller-supplied manifest loader to populate.
func (g *GitFetcher) fragmentsFromCommits(repo *git.Repository, location string) ([]Fragment, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, &FetchError{Kind: MetadataInvalid, Location: location, Err: err}
	}

	commitIter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, &FetchError{Kind: MetadataInvalid, Location: location, Err: err}
	}

	var commits []*object.Commit
	err = commitIter.ForEach(func(c *object.Commit) error {
		commits = append(commits, c)
		return nil
	})
	if err != nil {
		return nil, &FetchError{Kind: MetadataInvalid, Location: location, Err: err}
	}

	fragments := make([]Fragment, 0, len(commits))
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		fragments = append(fragments, Fragment{
			ID:           c.Hash.String(),
			FriendlyName: fmt.Sprintf("%s@%s", location, c.Hash.String()[:12]),
		})
	}
	return fragments, nil
}

// VersionControlCheckout checks out the given commit into dest,
// cloning fresh from repoLocation's repository-state directory and
// materializing submodules.
func (g *GitFetcher) VersionControlCheckout(ctx context.Context, repoLocation, dest, commit string) error {
	state := RepositoryState(repoLocation, TypeGit)
	src := filepath.Join(g.ReposDir, state)

	fs := osfs.New(dest, osfs.WithBoundOS())
	repo, err := git.PlainInit(dest, false)
	if err != nil {
		return fmt.Errorf("initializing worktree at %s: %w", dest, err)
	}

	remote, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{src}})
	if err != nil {
		return fmt.Errorf("configuring local remote: %w", err)
	}
	if err := remote.FetchContext(ctx, &git.FetchOptions{RemoteName: remote.Config().Name}); err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("fetching %s into worktree: %w", repoLocation, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(commit)}); err != nil {
		return fmt.Errorf("checking out %s: %w", commit, err)
	}

	if _, err := fs.Stat(".gitmodules"); err == nil {
		if err := checkoutSubmodules(wt); err != nil {
			return fmt.Errorf("checking out submodules: %w", err)
		}
	}
	return nil
}

func checkoutSubmodules(wt *git.Worktree) error {
	subs, err := wt.Submodules()
	if err != nil {
		return err
	}
	return subs.Update(&git.SubmoduleUpdateOptions{Init: true, RecurseSubmodules: git.DefaultSubmoduleRecursionDepth})
}

// FixupWorktree replaces filesystem-agnostic git symlinks with
// platform-native ones, or reverts to the VCS-native form when revert
// is true. See worktree_windows.go / worktree_other.go: the original
// tool only exercises this on Windows, where git may check symlinks
// out as plain text files pointing at a target path; everywhere else
// git already produces real symlinks, so this is a no-op.
func (g *GitFetcher) FixupWorktree(dest string, revert bool) error {
	return fixupWorktree(dest, revert)
}

// CheckoutPackage materializes fragment's package source into
// req.DestRoot, using the checkout cache to move the repository
// directory out for the duration of the checkout and restore it
// afterward.
func (g *GitFetcher) CheckoutPackage(ctx context.Context, req CheckoutRequest, fragment Fragment) (*plan.SelectedPackage, error) {
	if req.Simulate {
		return &plan.SelectedPackage{Name: req.Package, Version: req.Version, State: plan.StateUnpacked}, nil
	}

	state := RepositoryState(fragment.FriendlyName, TypeGit)
	permanent := filepath.Join(g.ReposDir, state)
	temp := filepath.Join(os.TempDir(), "pkgsynth-checkout-"+state)

	if err := g.Cache.Acquire(permanent, temp); err != nil {
		return nil, err
	}
	defer g.Cache.Release(permanent, g.FixupWorktree)

	dest := req.DestRoot
	if dest == "" {
		dest = filepath.Join(temp, "..", req.Package)
	}
	if err := g.VersionControlCheckout(ctx, fragment.FriendlyName, dest, fragment.ID); err != nil {
		return nil, err
	}
	if err := g.FixupWorktree(dest, false); err != nil {
		return nil, err
	}
	g.Cache.MarkFixedUp(permanent, true)

	return &plan.SelectedPackage{
		Name:       req.Package,
		Version:    req.Version,
		State:      plan.StateUnpacked,
		SourceRoot: dest,
	}, nil
}
