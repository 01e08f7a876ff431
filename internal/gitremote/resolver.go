package gitremote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/apptrail-sh/releasecheck/internal/model"
)

var (
	ErrEmptyArgument     = errors.New("repository url and branch must not be empty")
	ErrNoRefsFound       = errors.New("no refs found")
	ErrInvalidShaFormat  = errors.New("invalid sha format")
	ErrRemoteQueryFailed = errors.New("remote query failed")
)

// RefLister lists references on a remote repository matching ref, returning the
// raw "<sha>\t<ref>" lines
type RefLister interface {
	ListRemote(ctx context.Context, url, ref string) (string, error)
}

// Resolver resolves branch names to tip commit SHAs
type Resolver struct {
	lister RefLister
	log    logr.Logger
}

func NewResolver(lister RefLister, log logr.Logger) *Resolver {
	return &Resolver{
		lister: lister,
		log:    log,
	}
}

// Resolve queries the remote for refs/heads/<branch> and returns the validated ref
func (r *Resolver) Resolve(ctx context.Context, url, branch string) (*model.RemoteRef, error) {
	if url == "" || branch == "" {
		return nil, ErrEmptyArgument
	}

	log := r.log.WithValues("url", url, "branch", branch)
	ref := BranchRef(branch)

	output, err := r.lister.ListRemote(ctx, url, ref)
	if err != nil {
		log.Error(err, "Failed to query remote")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRemoteQueryFailed, url, ref, err)
	}

	sha, ok := firstToken(output)
	if !ok {
		log.Info("No refs found on remote")
		return nil, fmt.Errorf("%w for %s on %s", ErrNoRefsFound, ref, url)
	}

	if !model.IsValidSHA(sha) {
		log.Info("Remote returned an invalid sha", "sha", sha)
		return nil, fmt.Errorf("%w: %q for %s on %s", ErrInvalidShaFormat, sha, ref, url)
	}

	log.V(1).Info("Resolved branch", "sha", sha)
	return &model.RemoteRef{URL: url, Branch: branch, SHA: sha}, nil
}

// ResolveSHA is Resolve returning only the SHA
func (r *Resolver) ResolveSHA(ctx context.Context, url, branch string) (string, error) {
	ref, err := r.Resolve(ctx, url, branch)
	if err != nil {
		return "", err
	}
	return ref.SHA, nil
}

// BranchRef returns the full ref name of a branch
func BranchRef(branch string) string {
	return "refs/heads/" + branch
}

// firstToken returns the first whitespace delimited token of the first non-blank line
func firstToken(output string) (string, bool) {
	for line := range strings.Lines(output) {
		if fields := strings.Fields(line); len(fields) > 0 {
			return fields[0], true
		}
	}
	return "", false
}
