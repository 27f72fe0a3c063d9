package indexer

import (
	"context"
	"fmt"

	"knowledgehub/internal/contextutil"
	"knowledgehub/internal/storage"
	"knowledgehub/internal/vectorstore"
)

// StatsResult summarizes a tenant's indexed corpus, including the point
// count reported by the tenant's vector collection.
type StatsResult struct {
	storage.TenantStats
	VectorPoints int `json:"vector_points"`
}

// Stats reports corpus counts for a tenant. A missing or unreachable vector
// collection zeroes the point count instead of failing the call; the
// metadata store is the source of truth for document and chunk counts.
func (p *Pipeline) Stats(ctx context.Context, tenantID string) (*StatsResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	stats, err := p.docs.Stats(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant stats: %w", err)
	}

	result := &StatsResult{TenantStats: *stats}

	collection := vectorstore.CollectionName(p.collectionPrefix, tenantID)
	exists, err := p.vectors.CollectionExists(ctx, collection)
	if err != nil {
		logger.WarnContext(ctx, "vector store unreachable for stats", "tenant_id", tenantID, "error", err)
		return result, nil
	}
	if exists {
		info, err := p.vectors.Info(ctx, collection)
		if err != nil {
			logger.WarnContext(ctx, "failed to read collection info", "tenant_id", tenantID, "error", err)
			return result, nil
		}
		result.VectorPoints = info.PointsCount
	}

	return result, nil
}
