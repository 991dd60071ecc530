package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cashium/finchat/internal/i18n"
	"github.com/cashium/finchat/internal/pipeline"
)

// wsStageEvent is pushed while the pipeline advances through its stages.
type wsStageEvent struct {
	Type  string `json:"type"`
	Stage string `json:"stage"`
}

// wsAnswerEvent carries the final envelope, identical to the HTTP one.
type wsAnswerEvent struct {
	Type string `json:"type"`
	answerEnvelope
}

type wsTurnBody struct {
	turnBody
	Lang   string `json:"lang"`
	Format string `json:"format"`
}

// handleTurnWS is the streaming variant of the message endpoint: one
// turn request per client message, stage notifications while the
// pipeline runs, then the final answer envelope.
func (s *Server) handleTurnWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		var body wsTurnBody
		if err := conn.ReadJSON(&body); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		s.metrics.WSMessages.WithLabelValues("inbound", "turn").Inc()

		req, lang, key, ok := s.buildWSTurnRequest(r, body)
		if !ok {
			s.writeWS(conn, wsAnswerEvent{Type: "answer", answerEnvelope: noticeEnvelope(body.Params.ChatID, key, lang)})
			continue
		}

		// Stage events and the final answer are written from this
		// goroutine only; the pipeline calls Notify inline.
		req.Notify = func(stage string) {
			s.writeWS(conn, wsStageEvent{Type: "stage", Stage: stage})
		}
		req.ResolveOffers = true

		res, err := s.turns.ProcessTurn(r.Context(), req)
		if err != nil {
			s.writeWS(conn, wsAnswerEvent{Type: "answer", answerEnvelope: turnErrorEnvelope(err, body.Params.ChatID, lang)})
			continue
		}
		s.writeWS(conn, wsAnswerEvent{Type: "answer", answerEnvelope: answerEnvelope{
			Success: res.Outcome.Success(),
			ChatID:  res.ChatID,
			Answer:  res.Blocks,
		}})
	}
}

// buildWSTurnRequest mirrors buildTurnRequest for the streaming body.
// A false ok means rejection with the returned localized notice key.
func (s *Server) buildWSTurnRequest(r *http.Request, body wsTurnBody) (pipeline.TurnRequest, i18n.Language, i18n.Key, bool) {
	lang := i18n.Default
	if country, ok := i18n.CountryByID(body.Params.Country); ok {
		lang = country.Lang
	}

	if body.Lang != "" {
		parsed, ok := i18n.ParseLanguage(body.Lang)
		if !ok {
			return pipeline.TurnRequest{}, lang, i18n.KeyUnsupportedLanguage, false
		}
		lang = parsed
	}
	if body.Params.Country == 0 {
		return pipeline.TurnRequest{}, lang, i18n.KeyEmptyCountry, false
	}
	if body.Message == "" {
		return pipeline.TurnRequest{}, lang, i18n.KeyEmptyMessage, false
	}

	return pipeline.TurnRequest{
		ChatID:     body.Params.ChatID,
		ClientID:   body.Params.ClientID,
		CountryID:  body.Params.Country,
		ProviderID: body.Params.Provider,
		Message:    body.Message,
		LangCode:   body.Lang,
		Format:     pipeline.ParseFormat(body.Format),
		IP:         r.RemoteAddr,
	}, lang, 0, true
}

func (s *Server) writeWS(conn *websocket.Conn, v any) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues("outbound", "event").Inc()
}

func noticeEnvelope(chatID string, key i18n.Key, lang i18n.Language) answerEnvelope {
	return answerEnvelope{
		Success: false,
		ChatID:  chatID,
		Answer:  noticeBlocks(key, lang),
	}
}

func turnErrorEnvelope(err error, chatID string, lang i18n.Language) answerEnvelope {
	key := i18n.KeyServerError
	switch {
	case errors.Is(err, pipeline.ErrEmptyMessage):
		key = i18n.KeyEmptyMessage
	case errors.Is(err, pipeline.ErrUnsupportedCountry):
		key = i18n.KeyEmptyCountry
	case errors.Is(err, pipeline.ErrUnsupportedLanguage):
		key = i18n.KeyUnsupportedLanguage
	case errors.Is(err, pipeline.ErrSessionNotFound):
		key = i18n.KeySessionNotFound
	}
	return noticeEnvelope(chatID, key, lang)
}
