package db

import (
	"testing"

	"github.com/farmlean/agkaizen/db/models"
)

func sampleChunks() []models.SOPChunk {
	return []models.SOPChunk{
		{ID: 1, Flow: "post_harvest", Title: "Pre-cooling checklist", Body: "Move produce into the cooling room within 90 minutes of harvest.", Tags: []string{"cooling", "harvest"}},
		{ID: 2, Flow: "post_harvest", Title: "Crate hygiene", Body: "Wash crates daily and dry before stacking.", Tags: []string{"crates"}},
		{ID: 3, Flow: "post_harvest", Title: "Dispatch cadence", Body: "Prefer smaller daily shipments over two-day truck batches.", Tags: []string{"delivery", "truck"}},
		{ID: 4, Flow: "post_harvest", Title: "Storage audit", Body: "Check storage loss weekly and record the percentage.", Tags: []string{"storage"}},
	}
}

func TestRankChunksOrdersByScore(t *testing.T) {
	got := RankChunks(sampleChunks(), []string{"cooling", "harvest"}, 6)

	if len(got) != 1 {
		t.Fatalf("expected exactly one matching chunk, got %d", len(got))
	}
	if got[0].ID != 1 {
		t.Fatalf("expected pre-cooling chunk first, got id %d", got[0].ID)
	}
}

func TestRankChunksTitleOutweighsBody(t *testing.T) {
	chunks := []models.SOPChunk{
		{ID: 10, Title: "General notes", Body: "Mentions truck schedules in passing."},
		{ID: 11, Title: "Truck loading", Body: "Stage crates near the dock."},
	}

	got := RankChunks(chunks, []string{"truck"}, 2)
	if len(got) != 2 || got[0].ID != 11 {
		t.Fatalf("expected title match ranked first, got %v", got)
	}
}

func TestRankChunksHonorsLimit(t *testing.T) {
	got := RankChunks(sampleChunks(), []string{"daily", "storage", "truck", "crates"}, 2)
	if len(got) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(got))
	}
}

func TestRankChunksEmptyCases(t *testing.T) {
	if got := RankChunks(sampleChunks(), nil, 6); got != nil {
		t.Fatalf("expected nil for empty terms, got %v", got)
	}
	if got := RankChunks(sampleChunks(), []string{"spaceship"}, 6); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
	if got := RankChunks(nil, []string{"truck"}, 6); got != nil {
		t.Fatalf("expected nil for no candidates, got %v", got)
	}
}
