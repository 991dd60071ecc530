package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/i18n"
	"github.com/cashium/finchat/internal/pipeline"
)

type turnParams struct {
	ChatID   string `json:"chat_id"`
	ClientID string `json:"client_id"`
	Country  int    `json:"country"`
	Provider int    `json:"provider"`
}

type turnBody struct {
	Message string     `json:"message"`
	Params  turnParams `json:"params"`
}

// answerEnvelope is the wire shape of a processed turn.
type answerEnvelope struct {
	Success bool         `json:"success"`
	ChatID  string       `json:"chat_id"`
	Answer  []chat.Block `json:"answer"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var body turnBody
	if err := decodeJSON(r, &body); err != nil {
		respondNotice(w, http.StatusBadRequest, "", i18n.KeyEmptyMessage,
			i18n.ResolveLanguage(r.URL.Query().Get("lang")))
		return
	}

	req, lang, status, key, ok := s.buildTurnRequest(r, body)
	if !ok {
		respondNotice(w, status, body.Params.ChatID, key, lang)
		return
	}

	res, err := s.turns.ProcessTurn(r.Context(), req)
	if err != nil {
		s.respondTurnError(w, err, body.Params.ChatID, lang)
		return
	}
	respondResult(w, res)
}

// buildTurnRequest validates the cheap fields before the pipeline runs.
// A false ok means rejection with the returned status and localized
// notice key.
func (s *Server) buildTurnRequest(r *http.Request, body turnBody) (pipeline.TurnRequest, i18n.Language, int, i18n.Key, bool) {
	lang := i18n.Default
	if country, ok := i18n.CountryByID(body.Params.Country); ok {
		lang = country.Lang
	}

	langCode := strings.TrimSpace(r.URL.Query().Get("lang"))
	if langCode != "" {
		parsed, ok := i18n.ParseLanguage(langCode)
		if !ok {
			return pipeline.TurnRequest{}, lang, http.StatusBadRequest, i18n.KeyUnsupportedLanguage, false
		}
		lang = parsed
	}

	if body.Params.Country == 0 {
		return pipeline.TurnRequest{}, lang, http.StatusBadRequest, i18n.KeyEmptyCountry, false
	}
	if strings.TrimSpace(body.Message) == "" {
		return pipeline.TurnRequest{}, lang, http.StatusBadRequest, i18n.KeyEmptyMessage, false
	}

	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.RemoteAddr
	}

	return pipeline.TurnRequest{
		ChatID:     body.Params.ChatID,
		ClientID:   body.Params.ClientID,
		CountryID:  body.Params.Country,
		ProviderID: body.Params.Provider,
		Message:    body.Message,
		LangCode:   langCode,
		Format:     pipeline.ParseFormat(r.URL.Query().Get("format")),
		IP:         ip,
	}, lang, 0, 0, true
}

func (s *Server) respondTurnError(w http.ResponseWriter, err error, chatID string, lang i18n.Language) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyMessage):
		respondNotice(w, http.StatusBadRequest, chatID, i18n.KeyEmptyMessage, lang)
	case errors.Is(err, pipeline.ErrUnsupportedCountry):
		respondNotice(w, http.StatusBadRequest, chatID, i18n.KeyEmptyCountry, lang)
	case errors.Is(err, pipeline.ErrUnsupportedLanguage):
		respondNotice(w, http.StatusBadRequest, chatID, i18n.KeyUnsupportedLanguage, lang)
	case errors.Is(err, pipeline.ErrSessionNotFound):
		respondNotice(w, http.StatusInternalServerError, chatID, i18n.KeySessionNotFound, lang)
	default:
		s.logger.Error("turn failed", "error", err)
		respondNotice(w, http.StatusInternalServerError, chatID, i18n.KeyServerError, lang)
	}
}

func noticeBlocks(key i18n.Key, lang i18n.Language) []chat.Block {
	return []chat.Block{chat.NotificationBlock(i18n.Translate(key, lang))}
}

func respondNotice(w http.ResponseWriter, status int, chatID string, key i18n.Key, lang i18n.Language) {
	respondJSON(w, status, answerEnvelope{
		Success: false,
		ChatID:  chatID,
		Answer:  noticeBlocks(key, lang),
	})
}

func respondResult(w http.ResponseWriter, res pipeline.Result) {
	status := http.StatusOK
	if res.ServerError {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, answerEnvelope{
		Success: res.Outcome.Success(),
		ChatID:  res.ChatID,
		Answer:  res.Blocks,
	})
}
