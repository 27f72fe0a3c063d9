package rag

import (
	"context"
	"fmt"
	"strings"
)

// BuildContext runs a hybrid search and assembles the top results into a
// single context string for prompt building. Results are admitted whole in
// rank order until the next block would exceed maxChars; a result is never
// truncated mid-text. An empty context is a valid outcome.
func (e *Engine) BuildContext(ctx context.Context, req ContextRequest) (*ContextResponse, error) {
	maxChars := req.MaxChars
	if maxChars <= 0 {
		maxChars = e.cfg.ContextMaxChars
	}

	resp, err := e.Search(ctx, SearchRequest{
		TenantID:    req.TenantID,
		Query:       req.Query,
		SourceTypes: req.SourceTypes,
	})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	admitted := 0
	for i, r := range resp.Results {
		block := fmt.Sprintf("[%d] (%s) %s\n%s", i+1, r.SourceType, r.Title, r.Text)
		sep := 0
		if sb.Len() > 0 {
			sep = 2
		}
		if sb.Len()+sep+len(block) > maxChars {
			break
		}
		if sep > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(block)
		admitted++
	}

	return &ContextResponse{
		Context:  sb.String(),
		Results:  admitted,
		Degraded: resp.Degraded,
	}, nil
}
