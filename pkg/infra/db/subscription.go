package db

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// SubscriptionByRepo resolves the webhook subscription for a repository.
// Multiple active subscriptions for one repository cannot be attributed to a
// delivery (nothing in the payload distinguishes them), so that case is
// rejected rather than guessed.
func (c *Client) SubscriptionByRepo(ctx context.Context, repoID int64) (*model.Subscription, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, repo_id, secret, events
		FROM webhooks
		WHERE repo_id = $1 AND active = TRUE`, repoID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query webhooks", goerr.V("repo_id", repoID))
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		var sub model.Subscription
		if err := rows.Scan(&sub.ID, &sub.RepoID, &sub.Secret, &sub.Events); err != nil {
			return nil, goerr.Wrap(err, "failed to scan webhook row")
		}
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate webhooks")
	}

	switch len(subs) {
	case 0:
		return nil, goerr.Wrap(types.ErrSubscriptionNotFound, "no active webhook",
			goerr.V("repo_id", repoID))
	case 1:
		return subs[0], nil
	default:
		return nil, goerr.Wrap(types.ErrAmbiguousSubscription, "multiple active webhooks",
			goerr.V("repo_id", repoID), goerr.V("count", len(subs)))
	}
}
