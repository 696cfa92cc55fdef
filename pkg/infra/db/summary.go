package db

import (
	"context"
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

// nearestScanLimit bounds how many recent summaries the similarity search
// loads. Summaries are small and the worker pool is narrow, so an in-process
// scan over the recent window is enough here.
const nearestScanLimit = 256

// NearestSummary returns the stored summary whose embedding is closest to
// the given vector by cosine similarity, or nil when no comparable summary
// exists.
func (c *Client) NearestSummary(ctx context.Context, embedding []float64) (*model.SummaryRecord, float64, error) {
	if len(embedding) == 0 {
		return nil, 0, nil
	}

	rows, err := c.pool.Query(ctx, `
		SELECT id, event_id, occurred_at, summary_text, tech_stack, embedding, status, created_at
		FROM summaries
		WHERE embedding IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $1`, nearestScanLimit)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to query summaries")
	}
	defer rows.Close()

	var best *model.SummaryRecord
	var bestScore float64
	for rows.Next() {
		var rec model.SummaryRecord
		var id, eventID, status string
		if err := rows.Scan(&id, &eventID, &rec.OccurredAt, &rec.SummaryText,
			&rec.TechStack, &rec.Embedding, &status, &rec.CreatedAt); err != nil {
			return nil, 0, goerr.Wrap(err, "failed to scan summary row")
		}
		rec.ID = id
		rec.EventID = types.EventID(eventID)
		rec.Status = types.SummaryStatus(status)

		score := cosineSimilarity(embedding, rec.Embedding)
		if best == nil || score > bestScore {
			r := rec
			best = &r
			bestScore = score
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, goerr.Wrap(err, "failed to iterate summaries")
	}
	if best == nil {
		return nil, 0, nil
	}
	return best, bestScore, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
