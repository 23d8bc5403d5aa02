package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/farmlean/agkaizen/db/models"
)

type stubAnalyzer struct {
	result *ConsultantResult
	err    error
	calls  int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, userText string, history []ChatMessage, chunks []models.SOPChunk) (*ConsultantResult, error) {
	s.calls++
	return s.result, s.err
}

type stubSearcher struct {
	chunks []models.SOPChunk
	err    error
	flow   string
	limit  int
}

func (s *stubSearcher) SearchChunks(ctx context.Context, flow string, terms []string, limit int) ([]models.SOPChunk, error) {
	s.flow = flow
	s.limit = limit
	return s.chunks, s.err
}

type stubArchiver struct {
	records []models.ConsultationRecord
	err     error
}

func (s *stubArchiver) SaveConsultation(ctx context.Context, record models.ConsultationRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func llmResult(t *testing.T) *ConsultantResult {
	t.Helper()
	analysis, err := DecodeAnalysis([]byte(validAnalysisJSON), testTaxonomy(t))
	if err != nil {
		t.Fatalf("decode fixture analysis: %v", err)
	}
	return &ConsultantResult{Analysis: analysis, ReplyText: "Diagnosis: cool faster, ship daily."}
}

func newTestService(t *testing.T, opts ConsultServiceOptions) *ConsultService {
	t.Helper()
	tax := testTaxonomy(t)
	opts.Rules = NewRulesEngine(tax)
	opts.Taxonomy = tax
	opts.Logger = zap.NewNop().Sugar()
	svc := NewConsultService(opts)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestConsultEmptyInput(t *testing.T) {
	svc := newTestService(t, ConsultServiceOptions{})

	if _, err := svc.Consult(context.Background(), ConsultRequest{UserText: "   "}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestConsultClarificationPath(t *testing.T) {
	analyzer := &stubAnalyzer{}
	svc := newTestService(t, ConsultServiceOptions{Consultant: analyzer})

	got, err := svc.Consult(context.Background(), ConsultRequest{UserText: "it is bad"})
	if err != nil {
		t.Fatalf("consult failed: %v", err)
	}

	if !got.NeedsClarification {
		t.Fatalf("expected clarification for thin input")
	}
	if len(got.Questions) == 0 || len(got.Questions) > 3 {
		t.Fatalf("expected 1-3 clarifying questions, got %v", got.Questions)
	}
	if got.Analysis != nil {
		t.Fatalf("clarification must not carry an analysis")
	}
	if analyzer.calls != 0 {
		t.Fatalf("model must not be called before clarification")
	}
}

func TestConsultLLMPath(t *testing.T) {
	analyzer := &stubAnalyzer{result: llmResult(t)}
	searcher := &stubSearcher{chunks: []models.SOPChunk{{ID: 1, Title: "Pre-cooling checklist"}}}
	archive := &stubArchiver{}
	svc := newTestService(t, ConsultServiceOptions{Consultant: analyzer, Chunks: searcher, Archive: archive, RetrievalLimit: 6})

	got, err := svc.Consult(context.Background(), ConsultRequest{UserText: "Lettuce browns before delivery; trucks are every 2 days."})
	if err != nil {
		t.Fatalf("consult failed: %v", err)
	}

	if got.Source != SourceLLM {
		t.Fatalf("expected llm source, got %q", got.Source)
	}
	if searcher.flow != "post_harvest" || searcher.limit != 6 {
		t.Fatalf("retrieval used flow %q limit %d", searcher.flow, searcher.limit)
	}
	if got.Summary == nil || got.Summary.IssueType != "post_harvest" {
		t.Fatalf("expected closing summary, got %+v", got.Summary)
	}
	if got.NextCheckIn == nil || !got.NextCheckIn.Equal(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected check-in 7 days out, got %v", got.NextCheckIn)
	}
	if len(got.Retrieved) != 1 {
		t.Fatalf("expected retrieved chunks on the result")
	}
	if len(archive.records) != 1 || archive.records[0].Source != SourceLLM {
		t.Fatalf("expected archived record, got %+v", archive.records)
	}
}

func TestConsultFallsBackToRules(t *testing.T) {
	analyzer := &stubAnalyzer{err: errors.New("model unavailable")}
	svc := newTestService(t, ConsultServiceOptions{Consultant: analyzer})

	got, err := svc.Consult(context.Background(), ConsultRequest{UserText: "Harvest crates wait hours before cooling."})
	if err != nil {
		t.Fatalf("consult failed: %v", err)
	}

	if got.Source != SourceRules {
		t.Fatalf("expected rules source, got %q", got.Source)
	}
	if got.Analysis == nil || got.Analysis.Summary != "Preliminary diagnosis (rules-only)." {
		t.Fatalf("expected rules fallback analysis, got %+v", got.Analysis)
	}
	if got.Summary == nil || got.Summary.NextCheckInDays != 7 {
		t.Fatalf("expected fallback summary, got %+v", got.Summary)
	}
}

func TestConsultRetrievalFailureDegrades(t *testing.T) {
	analyzer := &stubAnalyzer{result: llmResult(t)}
	searcher := &stubSearcher{err: errors.New("postgres down")}
	svc := newTestService(t, ConsultServiceOptions{Consultant: analyzer, Chunks: searcher})

	got, err := svc.Consult(context.Background(), ConsultRequest{UserText: "Harvest crates wait hours before cooling."})
	if err != nil {
		t.Fatalf("retrieval failure must not fail the consult: %v", err)
	}
	if len(got.Retrieved) != 0 {
		t.Fatalf("expected no retrieved chunks, got %v", got.Retrieved)
	}
}

func TestConsultUsesCache(t *testing.T) {
	server := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	analyzer := &stubAnalyzer{result: llmResult(t)}
	svc := newTestService(t, ConsultServiceOptions{Consultant: analyzer, Cache: cache, CacheTTL: time.Minute})

	req := ConsultRequest{UserText: "Lettuce browns before delivery; trucks are every 2 days."}

	first, err := svc.Consult(context.Background(), req)
	if err != nil {
		t.Fatalf("first consult failed: %v", err)
	}

	second, err := svc.Consult(context.Background(), req)
	if err != nil {
		t.Fatalf("second consult failed: %v", err)
	}

	if analyzer.calls != 1 {
		t.Fatalf("expected one model call, got %d", analyzer.calls)
	}
	if second.Source != SourceCache {
		t.Fatalf("expected cache source, got %q", second.Source)
	}
	if second.ID != first.ID {
		t.Fatalf("cached consultation should round-trip intact")
	}
}

func TestConsultProgressStages(t *testing.T) {
	analyzer := &stubAnalyzer{result: llmResult(t)}
	svc := newTestService(t, ConsultServiceOptions{Consultant: analyzer})

	var stages []string
	_, err := svc.ConsultWithProgress(context.Background(), ConsultRequest{UserText: "Harvest crates wait hours before cooling."}, func(stage string) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("consult failed: %v", err)
	}

	want := []string{StageClarify, StageClassify, StageRetrieve, StagePrescribe, StageClose}
	if len(stages) != len(want) {
		t.Fatalf("expected %v, got %v", want, stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stage %d: expected %q, got %q", i, want[i], stages[i])
		}
	}
}

func TestRetrievalTerms(t *testing.T) {
	terms := retrievalTerms("The truck is LATE and the lettuce browns, browns, browns!")

	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		if seen[term] {
			t.Fatalf("duplicate term %q in %v", term, terms)
		}
		seen[term] = true
		if len(term) < minTermLength {
			t.Fatalf("term %q below minimum length", term)
		}
	}
	if !seen["truck"] || !seen["lettuce"] {
		t.Fatalf("expected distinctive words kept, got %v", terms)
	}
	if seen["the"] || seen["is"] || seen["and"] {
		t.Fatalf("short stop words must be dropped, got %v", terms)
	}
}
