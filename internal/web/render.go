/*
 * Copyright (c) 2019 OysterPack, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package web

import (
	"bytes"
	"encoding/json"
	"github.com/oysterpack/ecoshop/internal/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"html/template"
	"net/http"
	"strconv"
	"strings"
)

var templateFuncs = template.FuncMap{
	"money": func(m store.Money) string {
		return m.String() + " €"
	},
	"image": imageURL,
	"inc":   func(i int) int { return i + 1 },
	"dec":   func(i int) int { return i - 1 },
}

// page templates, which are rendered within the layout
var pageNames = []string{"home", "products", "product", "cart", "order", "error"}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse page template: %s", name)
		}
		pages[name] = tpl
	}
	return pages, nil
}

// imageURL requests the picsum image at the displayed size, i.e., "https://picsum.photos/seed/x/800/800" -> ".../400/400"
func imageURL(image string, size int) string {
	const original = "/800/800"
	if !strings.HasSuffix(image, original) {
		return image
	}
	dim := strconv.Itoa(size)
	return strings.TrimSuffix(image, original) + "/" + dim + "/" + dim
}

// render buffers the page, i.e., a template error results in a 500 instead of a partial page
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data interface{}) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logRequestError(requestError{r, errors.Wrapf(err, "failed to render page: %s", page)}, "page rendering failed")
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = buf.WriteTo(w)
	}
}

type errorPage struct {
	Title   string
	Message string
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, r, http.StatusNotFound, "error", errorPage{
		Title:   "Page introuvable",
		Message: "La page que vous recherchez n'existe pas.",
	})
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	s.logRequestError(requestError{r, err}, "request failed")
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, r, http.StatusInternalServerError, "error", errorPage{
		Title:   "Erreur",
		Message: "Une erreur est survenue. Veuillez réessayer plus tard.",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError maps store errors to HTTP status codes. The message of unexpected errors is logged, but never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Cache-Control", "no-store")
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logRequestError(requestError{r, err}, "request failed")
		writeJSON(w, status, errorResponse{Error: "Internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func errorStatus(err error) int {
	switch errors.Cause(err) {
	case store.ErrInvalidOrder, store.ErrUnknownUser, store.ErrUnknownProduct:
		return http.StatusBadRequest
	case store.ErrNotFound:
		return http.StatusNotFound
	case store.ErrInsufficientStock:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type requestError struct {
	r   *http.Request
	err error
}

func (e requestError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("method", e.r.Method).
		Str("path", e.r.URL.Path).
		Err(e.err)
}
