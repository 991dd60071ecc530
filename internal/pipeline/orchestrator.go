package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cashium/finchat/internal/catalog"
	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/completion"
	"github.com/cashium/finchat/internal/i18n"
	"github.com/cashium/finchat/internal/observability"
)

// Catalog is the slice of the offer gateway the pipeline consumes.
type Catalog interface {
	Fetch(ctx context.Context, countryCode string) (catalog.Result, error)
	FetchByIDs(ctx context.Context, ids []int64, countryCode string) ([]catalog.Offer, error)
}

// Orchestrator drives the per-turn state machine: validation, safety
// classification, summarization, offer ranking and answer assembly.
type Orchestrator struct {
	store   chat.Store
	locks   *chat.Locks
	catalog Catalog
	client  completion.Client

	classifier *Classifier
	summarizer *Summarizer
	ranker     *Ranker

	metrics *observability.Metrics
	window  *observability.StageWindow
	logger  *slog.Logger
}

func NewOrchestrator(
	logger *slog.Logger,
	store chat.Store,
	cat Catalog,
	client completion.Client,
	metrics *observability.Metrics,
	window *observability.StageWindow,
	rankConcurrency int,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		locks:      chat.NewLocks(),
		catalog:    cat,
		client:     client,
		classifier: NewClassifier(client),
		summarizer: NewSummarizer(client),
		ranker:     NewRanker(client, logger, metrics, rankConcurrency),
		metrics:    metrics,
		window:     window,
		logger:     logger,
	}
}

// ProcessTurn runs one user message through the pipeline. Validation
// failures return a sentinel error with no side effects; any later
// failure is recovered into a localized server-error result.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Result{}, ErrEmptyMessage
	}
	country, ok := i18n.CountryByID(req.CountryID)
	if !ok {
		return Result{}, ErrUnsupportedCountry
	}
	lang := country.Lang
	if req.LangCode != "" {
		parsed, ok := i18n.ParseLanguage(req.LangCode)
		if !ok {
			return Result{}, ErrUnsupportedLanguage
		}
		lang = parsed
	}
	format := req.Format
	if format == "" {
		format = FormatMarkdown
	}

	tc := turnContext{
		turnID:  ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		country: country,
		lang:    lang,
		format:  format,
	}
	logger := o.logger.With("turn_id", tc.turnID, "country", country.Code)
	turnStart := time.Now()

	conv, created, err := o.loadOrCreate(ctx, req, country)
	if err != nil {
		return Result{}, err
	}
	logger = logger.With("chat_id", conv.ID)

	release := o.locks.Acquire(conv.ID)
	defer release()

	if !created {
		// Reload under the lock so the turn sees appends that finished
		// while we waited.
		conv, err = o.store.GetByID(ctx, conv.ID)
		if err != nil {
			return Result{}, o.mapStoreErr(err)
		}
	}

	if conv.TerminatedBySystem {
		o.metrics.TurnsTotal.WithLabelValues(string(OutcomeTerminated)).Inc()
		return Result{
			ChatID:  conv.ID,
			Outcome: OutcomeTerminated,
			Blocks:  []chat.Block{chat.NotificationBlock(tc.notice(i18n.KeyChatViolation))},
		}, nil
	}

	res, err := o.runPipeline(ctx, logger, req, tc, conv)
	if err != nil {
		logger.ErrorContext(ctx, "turn pipeline failed", "error", err)
		res = o.recover(ctx, logger, tc, conv)
	}

	o.metrics.TurnsTotal.WithLabelValues(string(res.Outcome)).Inc()
	o.observeStage("turn_total", time.Since(turnStart))
	return res, nil
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, req TurnRequest, country i18n.Country) (chat.Chat, bool, error) {
	if req.ChatID != "" {
		conv, err := o.store.GetByID(ctx, req.ChatID)
		if err != nil {
			return chat.Chat{}, false, o.mapStoreErr(err)
		}
		return conv, false, nil
	}

	conv, err := o.store.Create(ctx, chat.Chat{
		IP:         req.IP,
		ClientID:   req.ClientID,
		CountryID:  country.ID,
		ProviderID: req.ProviderID,
	})
	if err != nil {
		return chat.Chat{}, false, fmt.Errorf("init chat: %w", err)
	}
	return conv, true, nil
}

func (o *Orchestrator) mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, chat.ErrNotFound) {
		return ErrSessionNotFound
	}
	return fmt.Errorf("load chat: %w", err)
}

func (o *Orchestrator) runPipeline(ctx context.Context, logger *slog.Logger, req TurnRequest, tc turnContext, conv chat.Chat) (Result, error) {
	// The user's message is persisted concurrently with classification so
	// a crash after the verdict cannot lose the turn. The append runs on
	// an uncancelable context: a fast classifier failure cancels the
	// group, and that must not abort a healthy persist.
	var (
		verdict  Verdict
		feed     catalog.Result
		appended chat.Chat
	)
	classifyStart := time.Now()
	o.notify(req, "classify")

	persistCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		appended, err = o.store.AppendMessage(persistCtx, conv.ID, chat.Message{
			Role:   chat.RoleUser,
			Blocks: []chat.Block{chat.TextBlock(req.Message)},
		}, false)
		if err != nil {
			return fmt.Errorf("persist user message: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		feed, err = o.catalog.Fetch(gctx, tc.country.Code)
		if err != nil {
			return fmt.Errorf("fetch catalog: %w", err)
		}
		verdict, err = o.classifier.Classify(gctx, conv, req.Message, feed.Types)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	conv = appended
	o.observeStage("classify", time.Since(classifyStart))
	logger.InfoContext(ctx, "turn classified",
		"category", string(verdict.Category), "confidence", verdict.Confidence)

	switch verdict.Category {
	case CategoryDanger:
		return o.terminate(ctx, tc, conv)
	case CategoryOther:
		return o.offTopic(ctx, tc, conv)
	}

	summary, res, err := o.summarize(ctx, req, tc, conv)
	if err != nil || res != nil {
		if res != nil {
			return *res, err
		}
		return Result{}, err
	}

	return o.answer(ctx, logger, req, tc, conv, feed, summary, string(verdict.Category))
}

// terminate handles the danger verdict. The violation notice is the last
// assistant entry the chat ever accepts.
func (o *Orchestrator) terminate(ctx context.Context, tc turnContext, conv chat.Chat) (Result, error) {
	notice := chat.NotificationBlock(tc.notice(i18n.KeyUnsafeChat))
	if _, err := o.store.AppendMessage(ctx, conv.ID, chat.Message{
		Role:   chat.RoleAssistant,
		Blocks: []chat.Block{notice},
	}, true); err != nil {
		return Result{}, fmt.Errorf("persist termination notice: %w", err)
	}
	return Result{ChatID: conv.ID, Outcome: OutcomeTerminated, Blocks: []chat.Block{notice}}, nil
}

func (o *Orchestrator) offTopic(ctx context.Context, tc turnContext, conv chat.Chat) (Result, error) {
	notice := chat.MarkdownBlock(tc.notice(i18n.KeyOnlyFinance))
	if _, err := o.store.AppendMessage(ctx, conv.ID, chat.Message{
		Role:   chat.RoleAssistant,
		Blocks: []chat.Block{notice},
	}, false); err != nil {
		return Result{}, fmt.Errorf("persist off-topic notice: %w", err)
	}
	return Result{ChatID: conv.ID, Outcome: OutcomeOffTopic, Blocks: []chat.Block{notice}}, nil
}

// summarize runs memory compaction. A non-nil Result short-circuits the
// turn (summarizer failure or missing information).
func (o *Orchestrator) summarize(ctx context.Context, req TurnRequest, tc turnContext, conv chat.Chat) (Summary, *Result, error) {
	start := time.Now()
	o.notify(req, "summarize")

	summary, err := o.summarizer.Summarize(ctx, conv, tc.lang)
	o.observeStage("summarize", time.Since(start))
	if err != nil {
		// Local recovery: the turn ends unsuccessfully, the chat stays open.
		o.logger.WarnContext(ctx, "summarization failed", "chat_id", conv.ID, "error", err)
		return Summary{}, &Result{
			ChatID:  conv.ID,
			Outcome: OutcomeFailed,
			Blocks:  []chat.Block{chat.NotificationBlock(tc.notice(i18n.KeyCouldNotSummarize))},
		}, nil
	}

	// The snapshot replaces its predecessor for every turn reaching this
	// stage, regardless of can_decide.
	if _, err := o.store.AppendMessage(ctx, conv.ID, chat.Message{
		Role:   chat.RoleSystem,
		Blocks: []chat.Block{chat.MemoryBlock(summary.Snapshot())},
	}, false); err != nil {
		return Summary{}, nil, fmt.Errorf("persist memory snapshot: %w", err)
	}

	if !summary.CanDecide {
		motivation := renderText(tc.format, summary.Motivation)
		if _, err := o.store.AppendMessage(ctx, conv.ID, chat.Message{
			Role:   chat.RoleAssistant,
			Blocks: []chat.Block{motivation},
		}, false); err != nil {
			return Summary{}, nil, fmt.Errorf("persist motivation: %w", err)
		}
		return Summary{}, &Result{
			ChatID:  conv.ID,
			Outcome: OutcomeNeedInfo,
			Blocks:  []chat.Block{motivation},
		}, nil
	}

	return summary, nil, nil
}

func (o *Orchestrator) answer(ctx context.Context, logger *slog.Logger, req TurnRequest, tc turnContext, conv chat.Chat, feed catalog.Result, summary Summary, productType string) (Result, error) {
	var (
		rankedIDs  []int64
		compareIDs []int64
	)
	rankStart := time.Now()
	o.notify(req, "rank")

	// Ranking and comparison extraction only need the intent summary and
	// the filtered catalog, so they run concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := o.ranker.Rank(gctx, feed.Offers, summary.UserIntentSummary, productType)
		if err != nil {
			return fmt.Errorf("rank offers: %w", err)
		}
		rankedIDs = ids
		return nil
	})
	g.Go(func() error {
		compareIDs = o.ranker.ExtractComparison(gctx, conv, feed.Offers, productType)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	o.observeStage("rank", time.Since(rankStart))
	o.metrics.OffersReturned.Observe(float64(len(rankedIDs)))

	blocks := make([]chat.Block, 0, 3)

	if len(compareIDs) == 2 {
		if b, ok := o.comparisonBlock(ctx, req, tc, summary, compareIDs); ok {
			blocks = append(blocks, b)
		}
	}

	narrativeStart := time.Now()
	o.notify(req, "narrative")
	narrative, err := o.narrative(ctx, tc, summary, len(rankedIDs))
	o.observeStage("narrative", time.Since(narrativeStart))
	if err != nil {
		logger.WarnContext(ctx, "narrative generation failed", "error", err)
		narrative = tc.notice(i18n.KeyGenerationError)
		if len(rankedIDs) == 0 {
			narrative = tc.notice(i18n.KeyNoOffers)
		}
	}
	blocks = append(blocks, renderText(tc.format, narrative))

	if offersBlock, ok := o.offersBlock(ctx, req, tc, rankedIDs); ok {
		blocks = append(blocks, offersBlock)
	}

	persistStart := time.Now()
	o.notify(req, "persist")
	if _, err := o.store.AppendMessage(ctx, conv.ID, chat.Message{
		Role:   chat.RoleAssistant,
		Blocks: blocks,
	}, false); err != nil {
		return Result{}, fmt.Errorf("persist answer: %w", err)
	}
	o.observeStage("persist", time.Since(persistStart))

	return Result{ChatID: conv.ID, Outcome: OutcomeAnswered, Blocks: blocks}, nil
}

func (o *Orchestrator) offersBlock(ctx context.Context, req TurnRequest, tc turnContext, ids []int64) (chat.Block, bool) {
	if len(ids) == 0 {
		return chat.Block{}, false
	}
	if !req.ResolveOffers {
		return chat.OffersBlock(ids), true
	}
	resolved, err := o.catalog.FetchByIDs(ctx, ids, tc.country.Code)
	if err != nil || len(resolved) == 0 {
		return chat.OffersBlock(ids), true
	}
	return chat.AppOffersBlock(resolved), true
}

func (o *Orchestrator) comparisonBlock(ctx context.Context, req TurnRequest, tc turnContext, summary Summary, ids []int64) (chat.Block, bool) {
	o.notify(req, "compare")
	start := time.Now()
	defer func() { o.observeStage("compare", time.Since(start)) }()

	resolved, err := o.catalog.FetchByIDs(ctx, ids, tc.country.Code)
	if err != nil || len(resolved) != 2 {
		return chat.Block{}, false
	}

	raw, err := o.client.Complete(ctx, completion.Request{
		Messages: []completion.Message{{
			Role: "system",
			Content: fmt.Sprintf(
				"You must reply in: %s. The user asked to compare two financial offers. "+
					"Write a brief side-by-side comparison covering the key terms of both. "+
					"User intent: %s\n\nOffer A: %s\n\nOffer B: %s",
				tc.lang.Code(), summary.UserIntentSummary,
				catalog.Normalize(resolved[0]), catalog.Normalize(resolved[1])),
		}},
		Schema:      narrativeSchema,
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		o.logger.WarnContext(ctx, "comparison narrative failed", "error", err)
		return chat.Block{}, false
	}
	text, err := decodeNarrative(raw)
	if err != nil || text == "" {
		return chat.Block{}, false
	}
	return renderText(tc.format, text), true
}

func (o *Orchestrator) narrative(ctx context.Context, tc turnContext, summary Summary, found int) (string, error) {
	raw, err := o.client.Complete(ctx, completion.Request{
		Messages: []completion.Message{{
			Role: "system",
			Content: fmt.Sprintf(
				"You must reply in: %s. Tell the user that there was found this amount of relevant financial offers for them: %d, "+
					"if there are no offers found tell the user that there are no offers found and suggest to adjust the query. "+
					"Be brief and clear. Initial user intent: %s",
				tc.lang.Code(), found, summary.UserIntentSummary),
		}},
		Schema:      narrativeSchema,
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return "", err
	}
	return decodeNarrative(raw)
}

// recover persists a localized server-error notice best effort and
// always returns the notice to the caller. Only the safety path ever
// terminates a chat.
func (o *Orchestrator) recover(ctx context.Context, logger *slog.Logger, tc turnContext, conv chat.Chat) Result {
	notice := chat.NotificationBlock(tc.notice(i18n.KeyServerError))
	if _, err := o.store.AppendMessage(ctx, conv.ID, chat.Message{
		Role:   chat.RoleSystem,
		Blocks: []chat.Block{notice},
	}, false); err != nil {
		logger.ErrorContext(ctx, "recovery persistence failed", "error", err)
	}
	return Result{ChatID: conv.ID, Outcome: OutcomeFailed, Blocks: []chat.Block{notice}, ServerError: true}
}

func (o *Orchestrator) notify(req TurnRequest, stage string) {
	if req.Notify != nil {
		req.Notify(stage)
	}
}

func (o *Orchestrator) observeStage(stage string, d time.Duration) {
	o.metrics.ObserveStage(stage, d)
	o.window.Observe(stage, d)
}
