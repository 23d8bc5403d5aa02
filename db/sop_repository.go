package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmlean/agkaizen/db/models"
)

// SOPRepository retrieves SOP/checklist excerpts for a process flow. Ranking
// is plain term matching over title, body and tags; candidates are narrowed
// by flow in SQL and scored in memory.
type SOPRepository struct {
	pool *pgxpool.Pool
}

func NewSOPRepository(pool *pgxpool.Pool) *SOPRepository {
	return &SOPRepository{pool: pool}
}

// SearchChunks returns at most limit chunks for the flow, best matches
// first. With no matching terms the result is empty rather than padded;
// callers are expected to fall back to a safe next step instead of
// inventing specifics.
func (r *SOPRepository) SearchChunks(ctx context.Context, flow string, terms []string, limit int) ([]models.SOPChunk, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("sop repository: postgres pool is nil")
	}
	if limit <= 0 {
		return nil, nil
	}

	const query = `SELECT id, flow, title, body, tags FROM sop_chunks WHERE flow = $1`
	rows, err := r.pool.Query(ctx, query, strings.ToLower(strings.TrimSpace(flow)))
	if err != nil {
		return nil, fmt.Errorf("query sop chunks: %w", err)
	}
	defer rows.Close()

	candidates := make([]models.SOPChunk, 0, 16)
	for rows.Next() {
		var chunk models.SOPChunk
		if err := rows.Scan(&chunk.ID, &chunk.Flow, &chunk.Title, &chunk.Body, &chunk.Tags); err != nil {
			return nil, fmt.Errorf("scan sop chunk: %w", err)
		}
		candidates = append(candidates, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sop chunks: %w", err)
	}

	return RankChunks(candidates, terms, limit), nil
}

// InsertChunk stores one SOP excerpt, used by the seed script.
func (r *SOPRepository) InsertChunk(ctx context.Context, chunk models.SOPChunk) error {
	const stmt = `INSERT INTO sop_chunks (flow, title, body, tags) VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, stmt, chunk.Flow, chunk.Title, chunk.Body, chunk.Tags); err != nil {
		return fmt.Errorf("insert sop chunk %q: %w", chunk.Title, err)
	}
	return nil
}

// CountChunks reports how many excerpts exist for a flow, or overall when
// flow is empty.
func (r *SOPRepository) CountChunks(ctx context.Context, flow string) (int64, error) {
	var (
		count int64
		err   error
	)
	if strings.TrimSpace(flow) == "" {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sop_chunks`).Scan(&count)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sop_chunks WHERE flow = $1`, flow).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count sop chunks: %w", err)
	}
	return count, nil
}

// RankChunks orders candidates by term hits and keeps the best limit
// entries. Chunks without a single hit are dropped.
func RankChunks(candidates []models.SOPChunk, terms []string, limit int) []models.SOPChunk {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}

	cleaned := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			cleaned = append(cleaned, term)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}

	type scored struct {
		chunk models.SOPChunk
		score int
		index int
	}

	ranked := make([]scored, 0, len(candidates))
	for i, chunk := range candidates {
		score := scoreChunk(chunk, cleaned)
		if score == 0 {
			continue
		}
		ranked = append(ranked, scored{chunk: chunk, score: score, index: i})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].index < ranked[b].index
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	result := make([]models.SOPChunk, 0, len(ranked))
	for _, entry := range ranked {
		result = append(result, entry.chunk)
	}
	return result
}

func scoreChunk(chunk models.SOPChunk, terms []string) int {
	title := strings.ToLower(chunk.Title)
	body := strings.ToLower(chunk.Body)

	score := 0
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += 3
		}
		if strings.Contains(body, term) {
			score += 1
		}
		for _, tag := range chunk.Tags {
			if strings.Contains(strings.ToLower(tag), term) {
				score += 2
				break
			}
		}
	}
	return score
}
