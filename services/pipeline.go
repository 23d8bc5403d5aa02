package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/farmlean/agkaizen/db/models"
	"github.com/farmlean/agkaizen/taxonomy"
)

// Pipeline stage names, emitted as progress events on the streaming
// endpoint.
const (
	StageClarify   = "clarify"
	StageClassify  = "classify"
	StageRetrieve  = "retrieve"
	StagePrescribe = "prescribe"
	StageClose     = "close"
)

// Consultation sources.
const (
	SourceLLM   = "llm"
	SourceRules = "rules"
	SourceCache = "cache"
)

var ErrEmptyInput = errors.New("consult: user text is empty")

const (
	cacheKeyPrefix   = "consult:"
	maxRetrievalTerm = 8
	minTermLength    = 4
)

type analyzer interface {
	Analyze(ctx context.Context, userText string, history []ChatMessage, chunks []models.SOPChunk) (*ConsultantResult, error)
}

type chunkSearcher interface {
	SearchChunks(ctx context.Context, flow string, terms []string, limit int) ([]models.SOPChunk, error)
}

type archiver interface {
	SaveConsultation(ctx context.Context, record models.ConsultationRecord) error
}

// ConsultRequest is one problem description, optionally with prior
// conversation turns supplied by the caller. The server keeps no session
// state of its own.
type ConsultRequest struct {
	UserText string        `json:"user_text"`
	History  []ChatMessage `json:"history,omitempty"`
}

// Consultation is the complete outcome of one pipeline run.
type Consultation struct {
	ID                 string            `json:"id"`
	Reply              string            `json:"reply"`
	Source             string            `json:"source"`
	NeedsClarification bool              `json:"needs_clarification,omitempty"`
	Questions          []string          `json:"clarifying_questions,omitempty"`
	Analysis           *Analysis         `json:"analysis,omitempty"`
	Summary            *ClosingSummary   `json:"summary,omitempty"`
	Retrieved          []models.SOPChunk `json:"retrieved,omitempty"`
	NextCheckIn        *time.Time        `json:"next_check_in,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// ConsultService orchestrates the five advisory stages: clarify, classify,
// retrieve, prescribe, close. The model path is preferred; every failure
// on it degrades to the rules engine so the caller always gets an answer.
type ConsultService struct {
	rules      *RulesEngine
	consultant analyzer
	chunks     chunkSearcher
	cache      *redis.Client
	archive    archiver
	tax        *taxonomy.Taxonomy
	logger     *zap.SugaredLogger

	cacheTTL       time.Duration
	retrievalLimit int
	now            func() time.Time
}

type ConsultServiceOptions struct {
	Rules          *RulesEngine
	Consultant     analyzer
	Chunks         chunkSearcher
	Cache          *redis.Client
	Archive        archiver
	Taxonomy       *taxonomy.Taxonomy
	Logger         *zap.SugaredLogger
	CacheTTL       time.Duration
	RetrievalLimit int
}

func NewConsultService(opts ConsultServiceOptions) *ConsultService {
	limit := opts.RetrievalLimit
	if limit <= 0 {
		limit = 6
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &ConsultService{
		rules:          opts.Rules,
		consultant:     opts.Consultant,
		chunks:         opts.Chunks,
		cache:          opts.Cache,
		archive:        opts.Archive,
		tax:            opts.Taxonomy,
		logger:         opts.Logger,
		cacheTTL:       ttl,
		retrievalLimit: limit,
		now:            time.Now,
	}
}

// Consult runs the full pipeline for one request.
func (s *ConsultService) Consult(ctx context.Context, req ConsultRequest) (*Consultation, error) {
	return s.ConsultWithProgress(ctx, req, nil)
}

// ConsultWithProgress runs the pipeline and reports each stage through the
// optional progress callback.
func (s *ConsultService) ConsultWithProgress(ctx context.Context, req ConsultRequest, progress func(stage string)) (*Consultation, error) {
	report := func(stage string) {
		if progress != nil {
			progress(stage)
		}
	}

	text := strings.TrimSpace(req.UserText)
	if text == "" {
		return nil, ErrEmptyInput
	}

	report(StageClarify)
	if s.rules.NeedsClarification(text) {
		return &Consultation{
			ID:                 uuid.NewString(),
			Reply:              "I need a little more detail before diagnosing this.",
			Source:             SourceRules,
			NeedsClarification: true,
			Questions:          s.rules.ClarifyingQuestions(),
			CreatedAt:          s.now().UTC(),
		}, nil
	}

	cacheKey := cacheKeyPrefix + hashText(text)
	if cached := s.cacheLookup(ctx, cacheKey); cached != nil {
		report(StageClose)
		return cached, nil
	}

	report(StageClassify)
	flowGuess := s.rules.DetectFlow(text)
	terms := retrievalTerms(text)

	report(StageRetrieve)
	var retrieved []models.SOPChunk
	if s.chunks != nil {
		chunks, err := s.chunks.SearchChunks(ctx, flowGuess, terms, s.retrievalLimit)
		if err != nil {
			s.logger.Warnf("sop retrieval failed: %v", err)
		} else {
			retrieved = chunks
		}
	}

	report(StagePrescribe)
	analysis, reply, source := s.prescribe(ctx, text, req.History, retrieved)

	report(StageClose)
	summary := analysis.Closing()
	checkIn := s.now().UTC().AddDate(0, 0, analysis.NextCheckInDays)

	consultation := &Consultation{
		ID:          uuid.NewString(),
		Reply:       reply,
		Source:      source,
		Analysis:    analysis,
		Summary:     &summary,
		Retrieved:   retrieved,
		NextCheckIn: &checkIn,
		CreatedAt:   s.now().UTC(),
	}

	s.cacheStore(ctx, cacheKey, consultation)
	s.archiveConsultation(ctx, text, consultation)

	return consultation, nil
}

func (s *ConsultService) prescribe(ctx context.Context, text string, history []ChatMessage, retrieved []models.SOPChunk) (*Analysis, string, string) {
	if s.consultant != nil {
		result, err := s.consultant.Analyze(ctx, text, history, retrieved)
		if err == nil {
			reply := result.ReplyText
			if reply == "" {
				reply = "Kaizen diagnosis generated."
			}
			return result.Analysis, reply, SourceLLM
		}
		s.logger.Warnf("llm analysis failed, using rules fallback: %v", err)
	}

	return s.rules.FallbackAnalysis(text), "Preliminary diagnosis from the rules fallback.", SourceRules
}

func (s *ConsultService) cacheLookup(ctx context.Context, key string) *Consultation {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warnf("cache lookup failed: %v", err)
		}
		return nil
	}

	var consultation Consultation
	if err := json.Unmarshal(raw, &consultation); err != nil {
		s.logger.Warnf("cache entry corrupt, ignoring: %v", err)
		return nil
	}

	consultation.Source = SourceCache
	return &consultation
}

func (s *ConsultService) cacheStore(ctx context.Context, key string, consultation *Consultation) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(consultation)
	if err != nil {
		s.logger.Warnf("cache encode failed: %v", err)
		return
	}

	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warnf("cache store failed: %v", err)
	}
}

func (s *ConsultService) archiveConsultation(ctx context.Context, text string, consultation *Consultation) {
	if s.archive == nil || consultation.Analysis == nil {
		return
	}

	record := models.ConsultationRecord{
		ID:        consultation.ID,
		UserText:  text,
		Flow:      consultation.Analysis.Flow,
		Wastes:    consultation.Analysis.Wastes,
		Source:    consultation.Source,
		Analysis:  consultation.Analysis,
		CreatedAt: consultation.CreatedAt,
	}

	if err := s.archive.SaveConsultation(ctx, record); err != nil {
		s.logger.Warnf("archive consultation failed: %v", err)
	}
}

func hashText(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// retrievalTerms extracts up to maxRetrievalTerm distinctive words from the
// problem description for SOP matching.
func retrievalTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, maxRetrievalTerm)
	for _, field := range fields {
		if len(field) < minTermLength {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		terms = append(terms, field)
		if len(terms) == maxRetrievalTerm {
			break
		}
	}

	sort.Strings(terms)
	return terms
}
