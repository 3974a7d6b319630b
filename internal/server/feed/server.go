package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/feeds"
	"github.com/samber/lo"

	unifeed "unifeed/internal/feed"
	"unifeed/internal/reader"
)

type Config struct {
	Port     string
	MaxItems int
}

// Server exposes the published snapshot over HTTP. Every handler reads
// through the fallback chain, so the server keeps answering even when
// storage is empty or unreachable.
type Server struct {
	config Config
	reader *reader.Reader
	server *http.Server
}

func New(config Config, r *reader.Reader) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.MaxItems == 0 {
		config.MaxItems = 50
	}

	return &Server{
		config: config,
		reader: r,
	}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.json", s.handleJSONFeed)
	mux.HandleFunc("/feed.rss", s.handleRSSFeed)
	mux.HandleFunc("/feed.atom", s.handleAtomFeed)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: mux,
	}

	go func() {
		slog.Info("Feed server starting", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Feed server error", "error", err)
		}
	}()

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Feed server shutdown error", "error", err)
		}
	}
	return nil
}

func (s *Server) handleJSONFeed(w http.ResponseWriter, r *http.Request) {
	env := s.reader.Load(r.Context())

	payload, err := unifeed.Encode(env)
	if err != nil {
		slog.Error("Failed to serialize envelope", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(payload)
}

func (s *Server) handleRSSFeed(w http.ResponseWriter, r *http.Request) {
	env := s.reader.Load(r.Context())

	rss, err := s.buildFeed(env).ToRss()
	if err != nil {
		slog.Error("Failed to generate RSS", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	fmt.Fprint(w, rss)
}

func (s *Server) handleAtomFeed(w http.ResponseWriter, r *http.Request) {
	env := s.reader.Load(r.Context())

	atom, err := s.buildFeed(env).ToAtom()
	if err != nil {
		slog.Error("Failed to generate Atom", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	fmt.Fprint(w, atom)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	env := s.reader.Load(r.Context())

	statuses := lo.Values(env.SourceStatuses)
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Source < statuses[j].Source
	})

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]any{
		"schema_version": env.SchemaVersion,
		"generated_at":   env.GeneratedAt,
		"item_count":     len(env.Items),
		"sources":        statuses,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","time":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func (s *Server) buildFeed(env *unifeed.Envelope) *feeds.Feed {
	items := lo.Map(env.Items, func(item unifeed.Item, _ int) *feeds.Item {
		return &feeds.Item{
			Id:          item.Key(),
			Title:       item.Title,
			Link:        &feeds.Link{Href: item.URL},
			Description: item.Body,
			Author:      &feeds.Author{Name: item.Author},
			Created:     item.PublishedAt,
		}
	})

	if len(items) > s.config.MaxItems {
		items = items[:s.config.MaxItems]
	}

	return &feeds.Feed{
		Title:       "Unifeed",
		Link:        &feeds.Link{Href: "http://localhost:" + s.config.Port + "/feed.json"},
		Description: "Aggregated feed across configured sources",
		Created:     env.GeneratedAt,
		Items:       items,
	}
}
