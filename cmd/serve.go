package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ausmap/geocat-cli/internal/catalog"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP",
	Long:  "Exposes item loading, choropleth color lookup, feature description, and legends to a browser-based renderer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{deps: env.Deps, catalog: catalog.NewCatalog()}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// apiServer holds one catalog shared by every request.
type apiServer struct {
	deps    *catalog.Deps
	catalog *catalog.Catalog
}

func (s *apiServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/items", s.handleAddItem)
	r.Get("/items", s.handleListItems)
	r.Get("/items/{id}/color/{slot}", s.handleColor)
	r.Get("/items/{id}/describe/{code}", s.handleDescribe)
	r.Get("/items/{id}/legend", s.handleLegend)
	return r
}

func (s *apiServer) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var state catalog.ItemState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.deps.NewItem(state)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := item.Load(r.Context()); err != nil {
		zap.L().Error("item load failed", zap.String("name", state.Name), zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.catalog.Add(item)

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":   item.ID(),
		"kind": string(item.Kind()),
		"name": item.Name(),
	})
}

func (s *apiServer) handleListItems(w http.ResponseWriter, _ *http.Request) {
	type itemInfo struct {
		ID   string       `json:"id"`
		Kind catalog.Kind `json:"kind"`
		Name string       `json:"name"`
	}
	items := s.catalog.Items()
	out := make([]itemInfo, 0, len(items))
	for _, item := range items {
		out = append(out, itemInfo{ID: item.ID(), Kind: item.Kind(), Name: item.Name()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleColor(w http.ResponseWriter, r *http.Request) {
	item, ok := s.getItem(w, r)
	if !ok {
		return
	}
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "slot must be an integer")
		return
	}

	tab, ok := item.(tabularItem)
	if !ok || tab.MapResult() == nil {
		writeError(w, http.StatusNotFound, "item has no color lookup")
		return
	}
	c, ok := tab.MapResult().ColorFunc()(slot)
	if !ok {
		writeError(w, http.StatusNotFound, "no color for slot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"slot": slot, "r": int(c.R), "g": int(c.G), "b": int(c.B), "a": int(c.A),
	})
}

func (s *apiServer) handleDescribe(w http.ResponseWriter, r *http.Request) {
	item, ok := s.getItem(w, r)
	if !ok {
		return
	}
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "code must be an integer")
		return
	}

	rec, ok := item.DescribeRow(code)
	if !ok {
		writeError(w, http.StatusNotFound, "no record for code")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handleLegend(w http.ResponseWriter, r *http.Request) {
	item, ok := s.getItem(w, r)
	if !ok {
		return
	}
	legend := item.Legend()
	if legend == nil {
		writeError(w, http.StatusNotFound, "item has no legend")
		return
	}
	writeJSON(w, http.StatusOK, legend)
}

func (s *apiServer) getItem(w http.ResponseWriter, r *http.Request) (catalog.Item, bool) {
	item, err := s.catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return item, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
