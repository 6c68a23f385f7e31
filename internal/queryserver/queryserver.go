// Package queryserver exposes the live knowledge graph over HTTP:
// read-only node, index, error, and root lookups plus the configured
// vocabularies a client needs to render or author documents correctly.
// Routes are built on github.com/go-chi/chi/v5. Every handler only ever
// acquires the read locks internal/graphengine's own query methods take;
// nothing here mutates the graph.
package queryserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tonimelisma/cartograph/internal/config"
	"github.com/tonimelisma/cartograph/internal/docmodel"
	"github.com/tonimelisma/cartograph/internal/graphengine"
)

// GraphProvider returns the graph to query. It is a function rather than a
// stored pointer so the server always sees the current graph even across
// an orchestrator-driven full rescan, which swaps the pointer out from
// under any in-flight request.
type GraphProvider func() *graphengine.Graph

// Server wires the graph and configuration into an http.Handler.
type Server struct {
	router *chi.Mux
	graph  GraphProvider
	holder *config.Holder
	logger *slog.Logger
}

// New builds a Server ready to be handed to http.Server.Handler (or used
// directly, since Server implements http.Handler).
func New(graph GraphProvider, holder *config.Holder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{graph: graph, holder: holder, logger: logger}
	s.router = s.buildRouter()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.logRequest)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/node/{id}", s.handleGetNode)
	r.Get("/nodes", s.handleListNodes)
	r.Get("/index/{name}/nodes", s.handleListIndex)
	r.Get("/errors/*", s.handlePathErrors)
	r.Get("/root/*", s.handleRootID)
	r.Get("/info/tags", s.handleInfoTags)
	r.Get("/info/link-types", s.handleInfoLinkTypes)
	r.Get("/info/default-link-type", s.handleInfoDefaultLinkType)
	r.Get("/info/action-keywords", s.handleInfoActionKeywords)

	return r
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("queryserver: request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start).String())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, graphengine.ErrNodeNotFound), errors.Is(err, graphengine.ErrPathNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// nodeOptionsFromQuery reads the boolean/format query parameters that
// select which parts of a node GetNode renders: body, metadata, children,
// connections, child_connections, contextualized, format.
func nodeOptionsFromQuery(q map[string][]string) graphengine.NodeOptions {
	has := func(key string) bool {
		v, ok := q[key]

		return ok && (len(v) == 0 || (v[0] != "" && v[0] != "false" && v[0] != "0"))
	}

	opts := graphengine.NodeOptions{
		Body:             has("body"),
		Metadata:         has("metadata"),
		Children:         has("children"),
		Connections:      has("connections"),
		ChildConnections: has("child_connections"),
		Contextualized:   has("contextualized"),
		Format:           docmodel.Markdown,
	}

	if v, ok := q["format"]; ok && len(v) > 0 && v[0] == "org" {
		opts.Format = docmodel.Org
	}

	return opts
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := docmodel.ParseIdentifier(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("queryserver: id is not a valid identifier"))

		return
	}

	opts := nodeOptionsFromQuery(r.URL.Query())

	node, err := s.graph().GetNode(id, opts)
	if err != nil {
		writeError(w, statusFor(err), err)

		return
	}

	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.graph().ListNodes())
}

func (s *Server) handleListIndex(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ids, ok := s.graph().ListIndex(name)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("queryserver: no such index: "+strconv.Quote(name)))

		return
	}

	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handlePathErrors(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")

	out, err := s.graph().Errors(path)
	if err != nil {
		writeError(w, statusFor(err), err)

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRootID(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")

	id, err := s.graph().RootID(path)
	if err != nil {
		writeError(w, statusFor(err), err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

func (s *Server) handleInfoTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(s.holder.Config().Tags))
}

func (s *Server) handleInfoLinkTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(s.holder.Config().LinkTypes))
}

func (s *Server) handleInfoDefaultLinkType(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"default_link_type": s.holder.Config().DefaultLinkType})
}

func (s *Server) handleInfoActionKeywords(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(s.holder.Config().ActionKeywords))
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
