package api

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/reviewboard/rb-browser/browse"
	"github.com/reviewboard/rb-browser/repositories"
)

const (
	htmlContentType = "text/html; charset=utf-8"
	cssContentType  = "text/css; charset=utf-8"
	rawContentType  = "application/octet-stream"
)

type contextKey int

// The context key of the repository opened by `withRepository`.
const repositoryKey contextKey = iota

type handlers struct {
	service   *browse.Service
	templates pageTemplates
	logger    *zap.Logger
}

// The data for the error page.
type errorPage struct {
	Status     int
	StatusText string
	Message    string
}

// Build the router for a service.
//
// In single-repository mode, repository pages are served from the root.
// Otherwise the root lists repositories and each repository lives under
// `/<repo>`.
//
// Routes match the escaped path, so a reference containing `/` can be
// addressed as a single `%2F`-escaped segment.
func newRouter(h *handlers, m *metrics) *mux.Router {
	router := mux.NewRouter().UseEncodedPath()
	router.Use(m.middleware)
	router.NotFoundHandler = m.instrument(unmatchedRoute, http.HandlerFunc(h.notFound))

	methods := []string{http.MethodGet, http.MethodHead}

	router.Path("/metrics").
		Methods(methods...).
		Handler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	router.Path("/css/{file}").
		Methods(methods...).
		HandlerFunc(h.getStylesheet)

	prefix := ""
	if h.service.IsSingle() {
		router.Path("/").Methods(methods...).Handler(h.withRepository(http.HandlerFunc(h.getIndex)))
	} else {
		prefix = "/{repo}"

		router.Path("/").Methods(methods...).HandlerFunc(h.getRepositories)
		router.Path(prefix).Methods(methods...).Handler(h.withRepository(http.HandlerFunc(h.getIndex)))
		router.Path(prefix + "/").Methods(methods...).Handler(h.withRepository(http.HandlerFunc(h.getIndex)))
	}

	routeTable := []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/branch/{ref}", h.getPath},
		{"/branch/{ref}/{path:.*}", h.getPath},
		{"/raw/{ref}/{path:.*}", h.getRaw},
	}

	for _, route := range routeTable {
		router.Path(prefix + route.path).
			Methods(methods...).
			Handler(h.withRepository(route.handler))
	}

	return router
}

// A middleware for wrapping routes that require a repository.
//
// If the requested repository exists, it is provided through the request
// context and retrieved with `repositoryFrom`. Otherwise an error page is
// written. In single-repository mode the name is ignored.
func (h *handlers) withRepository(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars, err := pathVars(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		repo, err := h.service.Open(vars["repo"])
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), repositoryKey, repo)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Return the repository stored by `withRepository`.
func repositoryFrom(r *http.Request) *repositories.GitRepository {
	return r.Context().Value(repositoryKey).(*repositories.GitRepository)
}

// Return the unescaped route variables of a request.
//
// A malformed escape is reported as a missing path.
func pathVars(r *http.Request) (map[string]string, error) {
	raw := mux.Vars(r)
	vars := make(map[string]string, len(raw))

	for key, value := range raw {
		unescaped, err := url.PathUnescape(value)
		if err != nil {
			return nil, errors.Wrapf(repositories.ErrPathNotFound, "malformed %s \"%s\"", key, value)
		}

		vars[key] = unescaped
	}

	return vars, nil
}

// List the repositories.
//
// URL: `/`
func (h *handlers) getRepositories(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListRepositories()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writePage(w, r, http.StatusOK, "repositories.html", summaries)
}

// Show a repository's index page.
//
// URL: `/<repo>`, or `/` in single-repository mode
func (h *handlers) getIndex(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RepositoryIndex(repositoryFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writePage(w, r, http.StatusOK, "index.html", view)
}

// Show a file or directory at a reference.
//
// URL: `/<repo>/branch/<ref>/<path>`
func (h *handlers) getPath(w http.ResponseWriter, r *http.Request) {
	vars, err := pathVars(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.service.RepositoryPath(repositoryFrom(r), vars["ref"], vars["path"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writePage(w, r, http.StatusOK, "path.html", view)
}

// Return the bytes of a file at a reference.
//
// URL: `/<repo>/raw/<ref>/<path>`
func (h *handlers) getRaw(w http.ResponseWriter, r *http.Request) {
	vars, err := pathVars(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	blob, err := h.service.RepositoryRaw(repositoryFrom(r), vars["ref"], vars["path"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", rawContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Content)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(blob.Content)
}

// Return a stylesheet.
//
// URL: `/css/<file>`
func (h *handlers) getStylesheet(w http.ResponseWriter, r *http.Request) {
	content, ok := stylesheet(mux.Vars(r)["file"])
	if !ok {
		h.notFound(w, r)
		return
	}

	w.Header().Set("Content-Type", cssContentType)
	w.Write(content)
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.writePage(w, r, http.StatusNotFound, "error.html", errorPage{
		Status:     http.StatusNotFound,
		StatusText: http.StatusText(http.StatusNotFound),
		Message:    "The requested page does not exist.",
	})
}

// Write an error page.
//
// Missing repositories, references, paths, and objects that cannot be served
// are reported as 404 with the error message. Anything else is logged and
// reported as 500 without details.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	page := errorPage{
		Status:  http.StatusInternalServerError,
		Message: "An unexpected error occurred.",
	}

	if repositories.IsNotFound(err) || errors.Is(err, repositories.ErrUnsupportedObject) {
		page.Status = http.StatusNotFound
		page.Message = err.Error()
	} else {
		h.logger.Error("Could not serve request",
			zap.String("method", r.Method),
			zap.Stringer("url", r.URL),
			zap.Error(err))
	}

	page.StatusText = http.StatusText(page.Status)

	h.writePage(w, r, page.Status, "error.html", page)
}

// Render a page and write it with the given status.
func (h *handlers) writePage(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	var buf bytes.Buffer

	if err := h.templates.Exec(&buf, name, data); err != nil {
		h.logger.Error("Could not render template",
			zap.String("template", name),
			zap.Stringer("url", r.URL),
			zap.Error(err))
		http.Error(w, "An unexpected error occurred.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", htmlContentType)
	w.WriteHeader(status)
	buf.WriteTo(w)
}
