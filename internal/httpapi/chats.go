package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/cashium/finchat/internal/chat"
	"github.com/cashium/finchat/internal/i18n"
)

type chatRef struct {
	ChatID   string `json:"chat_id"`
	ClientID string `json:"client_id"`
}

type historyMessage struct {
	From    string       `json:"from"`
	Data    []chat.Block `json:"data"`
	Created time.Time    `json:"created"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var ref chatRef
	if err := decodeJSON(r, &ref); err != nil || ref.ChatID == "" {
		respondNotice(w, http.StatusBadRequest, "", i18n.KeySessionNotFound, i18n.Default)
		return
	}

	conv, err := s.store.GetByID(r.Context(), ref.ChatID)
	if err != nil {
		s.respondStoreError(w, err, ref.ChatID)
		return
	}

	visible := conv.VisibleMessages()
	messages := make([]historyMessage, 0, len(visible))
	for _, m := range visible {
		messages = append(messages, historyMessage{
			From:    string(m.Role),
			Data:    m.Blocks,
			Created: m.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":                 true,
		"chat_id":                 conv.ID,
		"is_terminated_by_system": conv.TerminatedBySystem,
		"messages":                messages,
	})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	var ref chatRef
	if err := decodeJSON(r, &ref); err != nil || ref.ClientID == "" {
		respondNotice(w, http.StatusBadRequest, "", i18n.KeySessionNotFound, i18n.Default)
		return
	}

	chats, err := s.store.ListByClient(r.Context(), ref.ClientID)
	if err != nil {
		s.respondStoreError(w, err, "")
		return
	}

	type chatSummary struct {
		ChatID             string    `json:"chat_id"`
		Name               string    `json:"name"`
		Created            time.Time `json:"created"`
		TerminatedBySystem bool      `json:"is_terminated_by_system"`
		Public             bool      `json:"is_public"`
	}
	out := make([]chatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatSummary{
			ChatID:             c.ID,
			Name:               c.Preview(),
			Created:            c.Created,
			TerminatedBySystem: c.TerminatedBySystem,
			Public:             c.Public,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "chats": out})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Params      chatRef `json:"params"`
		AnswerIndex int     `json:"answer_index"`
		Message     string  `json:"message"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Params.ChatID == "" {
		respondNotice(w, http.StatusBadRequest, "", i18n.KeySessionNotFound, i18n.Default)
		return
	}

	err := s.store.AppendReport(r.Context(), body.Params.ChatID, chat.Report{
		AnswerIndex: body.AnswerIndex,
		Message:     body.Message,
	})
	if err != nil {
		s.respondStoreError(w, err, body.Params.ChatID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "chat_id": body.Params.ChatID})
}

func (s *Server) handlePublic(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Params chatRef `json:"params"`
		Public bool    `json:"public"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Params.ChatID == "" {
		respondNotice(w, http.StatusBadRequest, "", i18n.KeySessionNotFound, i18n.Default)
		return
	}

	if err := s.store.SetPublic(r.Context(), body.Params.ChatID, body.Public); err != nil {
		s.respondStoreError(w, err, body.Params.ChatID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chat_id": body.Params.ChatID,
		"public":  body.Public,
	})
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error, chatID string) {
	if errors.Is(err, chat.ErrNotFound) {
		respondNotice(w, http.StatusNotFound, chatID, i18n.KeySessionNotFound, i18n.Default)
		return
	}
	s.logger.Error("store operation failed", "chat_id", chatID, "error", err)
	respondNotice(w, http.StatusInternalServerError, chatID, i18n.KeyServerError, i18n.Default)
}
