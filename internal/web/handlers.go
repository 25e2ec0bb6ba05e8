package web

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/yomu/internal/domain"
	"github.com/conorfennell/yomu/internal/srs"
	"github.com/conorfennell/yomu/internal/storage"
)

type analyzeRequest struct {
	Content *string `json:"content" validate:"required"`
}

type analyzeResponse struct {
	Tokens []domain.Token `json:"tokens"`
}

type createCardRequest struct {
	Word    string `json:"word" validate:"required"`
	Reading string `json:"reading"`
	Meaning string `json:"meaning"`
}

type reviewRequest struct {
	CardID string     `json:"card_id" validate:"required"`
	Rating srs.Rating `json:"rating" validate:"required"`
}

type reviewResponse struct {
	Msg      string    `json:"msg"`
	NextDate time.Time `json:"next_date"`
}

type saveTextRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// handleStatus reports liveness and the analysis engine.
func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "online",
			"engine": s.analyzer.Engine(),
		})
	}
}

// handleAnalyze tokenizes the posted content. Analysis failures produce an
// empty token list, never an error.
func (s *Server) handleAnalyze() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if !s.decode(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, analyzeResponse{Tokens: s.analyzer.Analyze(*req.Content)})
	}
}

// handleDefinition proxies a dictionary lookup.
func (s *Server) handleDefinition() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !r.URL.Query().Has("word") {
			writeError(w, http.StatusBadRequest, "Missing word parameter")
			return
		}
		word := r.URL.Query().Get("word")
		writeJSON(w, http.StatusOK, map[string]string{
			"definition": s.definer.Lookup(r.Context(), word),
		})
	}
}

// handleCreateCard saves a word as a card, or points at the card that
// already holds it.
func (s *Server) handleCreateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCardRequest
		if !s.decode(w, r, &req) {
			return
		}

		card, outcome, err := s.db.CreateCard(r.Context(), req.Word, req.Reading, req.Meaning, s.now())
		if err != nil {
			slog.Error("Error creating card", "word", req.Word, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		if outcome == domain.AlreadyExists {
			writeJSON(w, http.StatusOK, messageResponse{Msg: "Word already exists", ID: card.ID})
			return
		}
		slog.Info("card created", "id", card.ID, "word", card.Word)
		writeJSON(w, http.StatusCreated, card)
	}
}

// handleGetReviews lists the cards due now.
func (s *Server) handleGetReviews() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := s.db.DueCards(r.Context(), s.now())
		if err != nil {
			slog.Error("Error getting due cards", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

// handlePostReview applies a rating to a card and stores its new schedule.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if !s.decode(w, r, &req) {
			return
		}
		if !req.Rating.IsValid() {
			// Unknown ratings keep the card's state and only move its due date.
			slog.Warn("unrecognized rating, keeping card state", "card_id", req.CardID, "rating", req.Rating)
		}

		now := s.now()
		card, err := s.db.ReviewCard(r.Context(), req.CardID, func(c domain.Card) domain.Card {
			next, due := s.srs.Schedule(srs.State{Interval: c.Interval, EaseFactor: c.EaseFactor}, req.Rating, now)
			c.Interval = next.Interval
			c.EaseFactor = next.EaseFactor
			c.NextReview = due
			return c
		})
		if errors.Is(err, storage.ErrCardNotFound) {
			writeError(w, http.StatusNotFound, "Card not found")
			return
		}
		if err != nil {
			slog.Error("Error updating card state", "card_id", req.CardID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		slog.Debug("card reviewed",
			"card_id", card.ID,
			"rating", req.Rating,
			"interval", card.Interval,
			"ease_factor", card.EaseFactor,
		)
		writeJSON(w, http.StatusOK, reviewResponse{Msg: "Review saved", NextDate: card.NextReview})
	}
}

// handleSaveText creates a text, or updates it when the id is known.
func (s *Server) handleSaveText() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveTextRequest
		if !s.decode(w, r, &req) {
			return
		}

		text, outcome, err := s.db.SaveText(r.Context(), domain.Text{
			ID:      req.ID,
			Title:   req.Title,
			Content: req.Content,
		}, s.now())
		if err != nil {
			slog.Error("Error saving text", "id", req.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		msg := "Text saved"
		if outcome == domain.TextUpdated {
			msg = "Text updated"
		}
		writeJSON(w, http.StatusOK, messageResponse{Msg: msg, ID: text.ID})
	}
}

// handleListTexts returns the library, most recently touched first.
func (s *Server) handleListTexts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		texts, err := s.db.ListTexts(r.Context())
		if err != nil {
			slog.Error("Error listing texts", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, texts)
	}
}

func (s *Server) handleGetText() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, err := s.db.FindTextByID(r.Context(), r.PathValue("id"))
		if err != nil {
			slog.Error("Error getting text", "id", r.PathValue("id"), "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if text == nil {
			writeError(w, http.StatusNotFound, "Text not found")
			return
		}
		writeJSON(w, http.StatusOK, text)
	}
}

func (s *Server) handleDeleteText() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		err := s.db.DeleteText(r.Context(), id)
		if errors.Is(err, storage.ErrTextNotFound) {
			writeError(w, http.StatusNotFound, "Text not found")
			return
		}
		if err != nil {
			slog.Error("Error deleting text", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Msg: "Text deleted", ID: id})
	}
}
