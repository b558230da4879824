package store

import (
	"context"
	"fmt"

	"github.com/aristath/finintel/internal/domain"
)

// RelationshipRepo persists cross-ticker relationships detected by the
// analyzer (spec §4.1, §4.4).
type RelationshipRepo struct {
	rs *ResearchStore
}

// NewRelationshipRepo constructs a RelationshipRepo over the given ResearchStore.
func NewRelationshipRepo(rs *ResearchStore) *RelationshipRepo { return &RelationshipRepo{rs: rs} }

// Upsert inserts a new relationship or, on conflict with an existing
// (source_ticker, target_ticker, relationship_type) triple, bumps the
// confidence toward certainty rather than overwriting it: the law is
// new_confidence = min(1.0, existing_confidence + 0.1 * detection_count),
// approximated here as a single-step nudge per corroborating detection,
// clamped at 1.0 (spec §8 relationship confidence-bump law).
func (r *RelationshipRepo) Upsert(ctx context.Context, rel *domain.Relationship) error {
	_, err := r.rs.pool.Exec(ctx, `
		INSERT INTO relationships (
			source_ticker, target_ticker, relationship_type, confidence,
			source_article_id, detected_at
		) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (source_ticker, target_ticker, relationship_type) DO UPDATE SET
			confidence = LEAST(1.0, relationships.confidence + 0.1),
			source_article_id = EXCLUDED.source_article_id,
			detected_at = EXCLUDED.detected_at`,
		rel.SourceTicker, rel.TargetTicker, rel.RelationshipType, rel.Confidence,
		rel.SourceArticleID, rel.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert relationship: %w", err)
	}
	return nil
}

// ForTicker returns every relationship where the ticker appears as either
// source or target, ordered by confidence descending.
func (r *RelationshipRepo) ForTicker(ctx context.Context, ticker string) ([]*domain.Relationship, error) {
	rows, err := r.rs.pool.Query(ctx, `
		SELECT source_ticker, target_ticker, relationship_type, confidence, source_article_id, detected_at
		FROM relationships
		WHERE source_ticker = $1 OR target_ticker = $1
		ORDER BY confidence DESC`, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships for ticker: %w", err)
	}
	defer rows.Close()

	var out []*domain.Relationship
	for rows.Next() {
		rel := &domain.Relationship{}
		if err := rows.Scan(&rel.SourceTicker, &rel.TargetTicker, &rel.RelationshipType,
			&rel.Confidence, &rel.SourceArticleID, &rel.DetectedAt); err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}
