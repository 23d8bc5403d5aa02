package main

import (
	"context"
	"log"

	"github.com/farmlean/agkaizen/config"
	"github.com/farmlean/agkaizen/db"
	"github.com/farmlean/agkaizen/db/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	repo := db.NewSOPRepository(pool)

	existing, err := repo.CountChunks(ctx, "")
	if err != nil {
		log.Fatalf("count chunks: %v", err)
	}
	if existing > 0 {
		log.Printf("sop_chunks already holds %d rows, nothing to do", existing)
		return
	}

	chunks := []models.SOPChunk{
		{
			Flow:  "post_harvest",
			Title: "Pre-cooling checklist",
			Body:  "Move harvested produce into the cooling room within 90 minutes. Record the time between picking and cooling for every lot.",
			Tags:  []string{"cooling", "harvest", "lettuce"},
		},
		{
			Flow:  "post_harvest",
			Title: "Dispatch cadence",
			Body:  "Prefer smaller daily shipments over batched two-day truck runs. Leafy greens should never wait a full day at ambient temperature.",
			Tags:  []string{"delivery", "truck", "waiting"},
		},
		{
			Flow:  "post_harvest",
			Title: "Storage loss audit",
			Body:  "Weigh rejected produce at the end of each week and record storage loss as a percentage of intake.",
			Tags:  []string{"storage", "defects", "kpi"},
		},
		{
			Flow:  "field_ops",
			Title: "Irrigation walk-through",
			Body:  "Walk each irrigation line at the start of the shift. Flag clogged emitters with tape instead of stopping to fix them mid-round.",
			Tags:  []string{"irrigation", "motion"},
		},
		{
			Flow:  "field_ops",
			Title: "Harvest crew staging",
			Body:  "Stage empty crates at the row ends before the crew arrives so pickers never walk more than 20 meters to drop a full crate.",
			Tags:  []string{"crates", "walking", "harvest"},
		},
		{
			Flow:  "inputs_logistics",
			Title: "Crate return loop",
			Body:  "Count returned crates against the dispatch log on every delivery. Missing crates are ordered weekly, not ad hoc.",
			Tags:  []string{"crates", "delivery", "inventory"},
		},
		{
			Flow:  "inputs_logistics",
			Title: "Fertilizer receiving check",
			Body:  "Inspect fertilizer bags at receiving and store them off the floor. Reject torn bags on the spot.",
			Tags:  []string{"fertilizer", "warehouse", "defects"},
		},
		{
			Flow:  "livestock",
			Title: "Milking parlor order",
			Body:  "Keep the same milking order every day. A changed order shows up as longer parlor time and stressed animals.",
			Tags:  []string{"milking", "waiting"},
		},
		{
			Flow:  "back_office",
			Title: "Invoice batching",
			Body:  "Enter delivery notes into invoices the same day. A weekly invoice pile hides pricing mistakes for too long.",
			Tags:  []string{"invoice", "paperwork", "delay"},
		},
	}

	for _, chunk := range chunks {
		if err := repo.InsertChunk(ctx, chunk); err != nil {
			log.Fatalf("seed chunk: %v", err)
		}
	}

	log.Printf("seeded %d sop chunks", len(chunks))
}
