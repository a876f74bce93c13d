package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	mdparser "github.com/gomarkdown/markdown/parser"
	"github.com/rs/zerolog"

	"stratval/adapters/catalog"
	"stratval/domain/core"
	"stratval/domain/strategy"
	"stratval/internal/logging"
	"stratval/internal/report"
)

// Server is the read-only status server over the workspace. It never
// mutates anything: runs happen through the CLI.
type Server struct {
	workspace *catalog.Workspace
	log       zerolog.Logger
}

func NewServer(workspace *catalog.Workspace) *Server {
	return &Server{
		workspace: workspace,
		log:       logging.For("api"),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handleOverview)
	r.Get("/api/strategies", s.handleList)
	r.Get("/api/strategies/{id}", s.handleStrategy)
	return r
}

// ListenAndServe runs the server until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("status server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOverview renders the markdown validation report as HTML.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Rows(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	md := report.Markdown(rows)

	parser := mdparser.NewWithExtensions(mdparser.CommonExtensions | mdparser.Tables)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.CompletePage,
		Title: "Validation Status",
	})
	html := markdown.ToHTML([]byte(md), parser, renderer)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

type strategyListItem struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Status        string `json:"status"`
	Determination string `json:"determination,omitempty"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var items []strategyListItem
	for _, status := range strategy.AllStatuses() {
		cands, err := s.workspace.List(r.Context(), status)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, cand := range cands {
			item := strategyListItem{
				ID:     string(cand.ID),
				Name:   cand.Name,
				Status: string(status),
			}
			if rec, err := s.workspace.LoadState(r.Context(), cand.ID); err == nil {
				item.Determination = string(rec.Outcome)
			}
			items = append(items, item)
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	id := core.StrategyID(chi.URLParam(r, "id"))

	cand, err := s.workspace.Load(r.Context(), id)
	if err != nil {
		if core.IsNotFoundError(err) {
			http.Error(w, "strategy not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	payload := map[string]any{"candidate": cand}
	if rec, err := s.workspace.LoadState(r.Context(), id); err == nil {
		payload["run"] = rec
	}
	if raw, err := s.workspace.LoadArtifact(r.Context(), id, "run_result.json"); err == nil {
		payload["result"] = json.RawMessage(raw)
	}
	writeJSON(w, http.StatusOK, payload)
}

// Rows builds report rows from persisted run results. The report
// command shares this with the overview page.
func (s *Server) Rows(ctx context.Context) ([]report.Summary, error) {
	var rows []report.Summary
	for _, status := range strategy.AllStatuses() {
		cands, err := s.workspace.List(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, cand := range cands {
			row := report.Summary{
				ID:     string(cand.ID),
				Name:   cand.Name,
				Status: string(status),
			}
			if rec, err := s.workspace.LoadState(ctx, cand.ID); err == nil {
				row.Determination = rec.Outcome
				row.Reason = rec.Reason
			}
			if raw, err := s.workspace.LoadArtifact(ctx, cand.ID, "walk_forward.json"); err == nil {
				var wf struct {
					Aggregate *struct {
						Sharpe        *float64 `json:"sharpe"`
						CAGR          *float64 `json:"cagr"`
						WorstDrawdown *float64 `json:"worst_drawdown"`
						Consistency   *float64 `json:"consistency"`
						TotalTrades   int      `json:"total_trades"`
						WindowsPassed int      `json:"windows_passed"`
						WindowsRun    int      `json:"windows_run"`
					} `json:"aggregate"`
				}
				if json.Unmarshal(raw, &wf) == nil && wf.Aggregate != nil {
					row.Sharpe = wf.Aggregate.Sharpe
					row.CAGR = wf.Aggregate.CAGR
					row.WorstDrawdown = wf.Aggregate.WorstDrawdown
					row.Consistency = wf.Aggregate.Consistency
					row.TotalTrades = wf.Aggregate.TotalTrades
					row.WindowsPassed = wf.Aggregate.WindowsPassed
					row.WindowsRun = wf.Aggregate.WindowsRun
				}
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
