package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/cashium/finchat/internal/catalog"
	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/completion"
	"github.com/cashium/finchat/internal/observability"
)

// relevanceThreshold is the exclusive minimum score an offer must reach
// to qualify. Not user-exposed.
const relevanceThreshold = 6

// Ranker scores catalog offers against a summarized user intent with one
// completion call per candidate offer.
type Ranker struct {
	client        completion.Client
	logger        *slog.Logger
	metrics       *observability.Metrics
	maxConcurrent int
}

func NewRanker(client completion.Client, logger *slog.Logger, metrics *observability.Metrics, maxConcurrent int) *Ranker {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Ranker{client: client, logger: logger, metrics: metrics, maxConcurrent: maxConcurrent}
}

type scoredOffer struct {
	offer catalog.Offer
	score float64
}

// Rank returns the qualifying offer ids. Candidates are partner offers of
// productType only. Scoring runs fan-out with a bounded limit; individual
// failures drop that offer and never abort the batch. Qualifiers (score
// strictly above the threshold) are ordered by score descending, then the
// retained set is re-sorted by catalog weight descending: the score acts
// as an inclusion filter, the weight decides the published order.
func (r *Ranker) Rank(ctx context.Context, offers []catalog.Offer, intentSummary, productType string) ([]int64, error) {
	candidates := lo.Filter(offers, func(o catalog.Offer, _ int) bool {
		return o.IsPartner && strings.EqualFold(o.OfferType.Type, productType)
	})
	if len(candidates) == 0 {
		return nil, nil
	}
	if r.metrics != nil {
		r.metrics.OffersRanked.Add(float64(len(candidates)))
	}

	var (
		mu     sync.Mutex
		scored []scoredOffer
		errs   *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)
	for _, offer := range candidates {
		offer := offer
		g.Go(func() error {
			score, err := r.scoreOffer(gctx, offer, intentSummary)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("offer %d: %w", offer.ID, err))
				return nil
			}
			scored = append(scored, scoredOffer{offer: offer, score: score})
			return nil
		})
	}
	_ = g.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		r.logger.WarnContext(ctx, "offer scoring partially failed",
			"failed", len(errs.Errors), "scored", len(scored), "error", err)
	}
	if len(scored) == 0 && errs.ErrorOrNil() != nil {
		return nil, fmt.Errorf("all %d offer scoring calls failed: %w", len(candidates), errs.ErrorOrNil())
	}

	qualified := lo.Filter(scored, func(s scoredOffer, _ int) bool {
		return s.score > relevanceThreshold
	})
	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].score > qualified[j].score
	})
	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].offer.RPC > qualified[j].offer.RPC
	})

	return lo.Map(qualified, func(s scoredOffer, _ int) int64 {
		return s.offer.ID
	}), nil
}

func (r *Ranker) scoreOffer(ctx context.Context, offer catalog.Offer, intentSummary string) (float64, error) {
	raw, err := r.client.Complete(ctx, completion.Request{
		Messages: []completion.Message{
			{
				Role: "system",
				Content: "You are an expert at matching offers to user intent. " +
					"Analyze if the offer is relevant to the user's intent and respond with a relevance score from 0-10 and a brief explanation.",
			},
			{
				Role: "user",
				Content: fmt.Sprintf(
					"User Intent: %s\n\nOffer: %s\n\nIs this offer relevant to the user's intent?",
					intentSummary, catalog.Normalize(offer)),
			},
		},
		Schema:      scoringSchema,
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		return 0, err
	}

	var verdict struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return 0, fmt.Errorf("decode score: %w", err)
	}
	if verdict.Score < 0 || verdict.Score > 10 {
		return 0, fmt.Errorf("score %v out of range", verdict.Score)
	}
	return verdict.Score, nil
}

var scoringSchema = completion.Schema{
	Name: "offer_score",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"score": {"type": "number", "minimum": 0, "maximum": 10},
			"reason": {"type": "string"}
		},
		"required": ["score", "reason"],
		"additionalProperties": false
	}`),
	Required: []string{"score", "reason"},
}

// ExtractComparison finds up to two offers of the active product type
// the user explicitly asked to compare. A nil result means no comparison
// was requested; extraction failures are treated the same way.
func (r *Ranker) ExtractComparison(ctx context.Context, conv chat.Chat, offers []catalog.Offer, productType string) []int64 {
	candidates := lo.Filter(offers, func(o catalog.Offer, _ int) bool {
		return strings.EqualFold(o.OfferType.Type, productType)
	})
	if len(candidates) == 0 {
		return nil
	}

	names := lo.Map(candidates, func(o catalog.Offer, _ int) string {
		return fmt.Sprintf("%d: %s", o.ID, o.Name)
	})

	raw, err := r.client.Complete(ctx, completion.Request{
		Messages: []completion.Message{
			{
				Role: "system",
				Content: "Decide whether the user explicitly asked to compare specific offers from the list below. " +
					"Return the ids of at most two offers the user named. Return an empty list when the user did not ask for a comparison.\n" +
					strings.Join(names, "\n"),
			},
			{Role: "user", Content: lastUserText(conv)},
		},
		Schema:      comparisonSchema,
		Temperature: 0,
		MaxTokens:   60,
	})
	if err != nil {
		r.logger.DebugContext(ctx, "comparison extraction failed", "error", err)
		return nil
	}

	var out struct {
		OfferIDs []int64 `json:"offer_ids"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}

	known := lo.KeyBy(candidates, func(o catalog.Offer) int64 { return o.ID })
	ids := lo.Filter(lo.Uniq(out.OfferIDs), func(id int64, _ int) bool {
		_, ok := known[id]
		return ok
	})
	if len(ids) > 2 {
		ids = ids[:2]
	}
	if len(ids) != 2 {
		return nil
	}
	return ids
}

var comparisonSchema = completion.Schema{
	Name: "comparison_request",
	Definition: json.RawMessage(`{
		"type": "object",
		"properties": {
			"offer_ids": {"type": "array", "items": {"type": "integer"}, "maxItems": 2}
		},
		"required": ["offer_ids"],
		"additionalProperties": false
	}`),
	Required: []string{"offer_ids"},
}

func lastUserText(conv chat.Chat) string {
	users := conv.UserMessages()
	for i := len(users) - 1; i >= 0; i-- {
		for _, b := range users[i].Blocks {
			if b.Text != "" {
				return b.Text
			}
		}
	}
	return ""
}
