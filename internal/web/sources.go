package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/yomu/internal/storage"
	"github.com/conorfennell/yomu/internal/sync"
)

type sourceRequest struct {
	Path string `json:"path" validate:"required"`
}

type sourceResponse struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"last_scanned"`
}

type syncResponse struct {
	Msg     string           `json:"msg"`
	Reports []syncReport     `json:"reports"`
	Sources []sourceResponse `json:"sources"`
}

type syncReport struct {
	SourceID int64    `json:"source_id"`
	Parsed   int      `json:"parsed"`
	Written  int      `json:"written"`
	Removed  int      `json:"removed"`
	Errors   []string `json:"errors"`
}

type articleRequest struct {
	URL string `json:"url" validate:"required,url"`
}

func toSourceResponses(sources []storage.Source) []sourceResponse {
	out := make([]sourceResponse, 0, len(sources))
	for _, src := range sources {
		resp := sourceResponse{ID: src.ID, Path: src.Path, Type: src.Type}
		if src.LastScanned.Valid {
			t := src.LastScannedAt()
			resp.LastScanned = &t
		}
		out = append(out, resp)
	}
	return out
}

// writeSources answers with the current source list.
func (s *Server) writeSources(w http.ResponseWriter, r *http.Request, status int) {
	sources, err := s.db.GetAllSources(r.Context())
	if err != nil {
		slog.Error("Error getting sources", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, status, toSourceResponses(sources))
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeSources(w, r, http.StatusOK)
	}
}

// handlePostSource registers a source and returns the updated list.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if !s.decode(w, r, &req) {
			return
		}
		if _, err := sync.AddSource(r.Context(), s.db, req.Path); err != nil {
			slog.Warn("Error adding source", "path", req.Path, "error", err)
			writeError(w, http.StatusBadRequest, "Failed to add source")
			return
		}
		s.writeSources(w, r, http.StatusCreated)
	}
}

// handleDeleteSource removes a source with its passages and returns the
// updated list.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid source ID")
			return
		}

		err = s.db.DeleteSource(r.Context(), id)
		if errors.Is(err, storage.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "Source not found")
			return
		}
		if err != nil {
			slog.Error("Error deleting source", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to delete source")
			return
		}
		s.writeSources(w, r, http.StatusOK)
	}
}

// handlePostSync imports passages from every source. It runs in the
// foreground so the caller sees the result.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := sync.Run(r.Context(), s.db, s.reposDir)
		if err != nil {
			slog.Error("Error running sync", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		sources, err := s.db.GetAllSources(r.Context())
		if err != nil {
			slog.Error("Error getting sources after sync", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		resp := syncResponse{
			Msg:     "Sync complete",
			Reports: make([]syncReport, 0, len(reports)),
			Sources: toSourceResponses(sources),
		}
		for _, rep := range reports {
			errs := make([]string, 0, len(rep.Errors))
			for _, e := range rep.Errors {
				errs = append(errs, e.Error())
			}
			resp.Reports = append(resp.Reports, syncReport{
				SourceID: rep.SourceID,
				Parsed:   rep.Parsed,
				Written:  rep.Written,
				Removed:  rep.Removed,
				Errors:   errs,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleImportArticle fetches a web page and saves its article as a text.
func (s *Server) handleImportArticle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.articles == nil {
			writeError(w, http.StatusNotImplemented, "Article import is disabled")
			return
		}
		var req articleRequest
		if !s.decode(w, r, &req) {
			return
		}

		text, err := s.articles.Fetch(r.Context(), req.URL)
		if err != nil {
			slog.Warn("Error fetching article", "url", req.URL, "error", err)
			writeError(w, http.StatusBadGateway, "Failed to fetch article")
			return
		}
		saved, _, err := s.db.SaveText(r.Context(), text, s.now())
		if err != nil {
			slog.Error("Error saving article", "url", req.URL, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusCreated, messageResponse{Msg: "Text saved", ID: saved.ID})
	}
}
