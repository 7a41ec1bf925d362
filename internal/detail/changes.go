package detail

import (
	"context"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/devops"
	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
)

// AttachChanges fills the change lists of the first MaxDetailCommits commits,
// then restricted to repositoryID when it is set. A commit whose changes cannot
// be read is kept without them; authorization failures abort.
func (r *Resolver) AttachChanges(ctx context.Context, org string, commits []devops.CommitRef, repositoryID string) ([]devops.CommitRef, error) {
	selected := r.selectCommits(commits, repositoryID)

	for i := range selected {
		if i > 0 {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		c := &selected[i]
		changes, err := r.source.GetCommitChanges(ctx, org, c.ProjectName, c.RepositoryID, c.CommitID)
		switch {
		case err == nil:
			c.Changes = changes
		case ctx.Err() != nil || errors.IsAuthorization(err):
			return nil, err
		default:
			r.logger.WithError(err).WithField("commit", c.CommitID).Warn("change list unavailable, keeping commit without files")
		}
		r.progress(i+1, len(selected))
	}
	return selected, nil
}
