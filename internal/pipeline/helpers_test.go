package pipeline

import (
	"context"

	"github.com/cashium/finchat/internal/catalog"
	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/observability"
)

// Prometheus collectors register globally, so the package shares one set.
var (
	testMetrics = observability.NewMetrics("finchat_pipeline_test")
	testWindow  = observability.NewStageWindow(32)
)

func chatWithUserText(text string) chat.Chat {
	return chat.Chat{
		ID: "chat-test",
		Messages: []chat.Message{
			{Index: 0, Role: chat.RoleUser, Blocks: []chat.Block{chat.TextBlock(text)}},
		},
	}
}

type stubCatalog struct {
	result catalog.Result
	err    error
}

func (s *stubCatalog) Fetch(context.Context, string) (catalog.Result, error) {
	return s.result, s.err
}

func (s *stubCatalog) FetchByIDs(_ context.Context, ids []int64, _ string) ([]catalog.Offer, error) {
	byID := make(map[int64]catalog.Offer, len(s.result.Offers))
	for _, o := range s.result.Offers {
		byID[o.ID] = o
	}
	var out []catalog.Offer
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}
