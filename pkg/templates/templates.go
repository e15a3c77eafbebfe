// Package templates renders Jinja-style templates into YAML documents.
//
// Templates are searched in configured override directories first,
// and then in the built-in ones.
package templates

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"
)

//go:embed builtin
var builtin embed.FS

// ErrConsumed is yielded when Documents are iterated twice.
var ErrConsumed = errors.New("templates: documents are already consumed")

// ErrNoDocument is returned by Documents.First for an empty stream.
var ErrNoDocument = errors.New("templates: no documents")

func init() {
	pongo2.SetAutoescape(false)
	pongo2.RegisterFilter("tojson", filterToJSON)
}

func filterToJSON(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	b, err := json.Marshal(in.Interface())
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:tojson", OrigError: err}
	}
	return pongo2.AsSafeValue(string(b)), nil
}

// ErrTemplateNotFound tells a template is found in none of searched places.
type ErrTemplateNotFound struct {
	Name     string
	Searched []string
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf(
		"no template %s found in default location or in %s",
		e.Name, strings.Join(e.Searched, ", "),
	)
}

// Documents is a lazy sequence of YAML documents.
//
// It can be iterated only once.
// The second iteration yields ErrConsumed and stops.
type Documents iter.Seq2[map[string]any, error]

// First returns the first document and discards the rest.
func (d Documents) First() (map[string]any, error) {
	for doc, err := range d {
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
	return nil, ErrNoDocument
}

// All collects every document.
func (d Documents) All() ([]map[string]any, error) {
	docs := []map[string]any{}
	for doc, err := range d {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func documents(text string) Documents {
	consumed := new(atomic.Bool)
	return func(yield func(map[string]any, error) bool) {
		if consumed.Swap(true) {
			yield(nil, ErrConsumed)
			return
		}
		dec := yaml.NewDecoder(strings.NewReader(text))
		for {
			var doc map[string]any
			err := dec.Decode(&doc)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if doc == nil {
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

type Renderer struct {
	paths   []string
	builtin fs.FS
	log     *log.Logger
}

type Option func(*Renderer) *Renderer

func WithLogger(l *log.Logger) Option {
	return func(r *Renderer) *Renderer {
		r.log = l
		return r
	}
}

// New creates Renderer searching templates from paths, then from built-in ones.
func New(paths []string, opts ...Option) *Renderer {
	r := &Renderer{
		paths:   append([]string{}, paths...),
		builtin: builtin,
		log:     log.New("templates"),
	}
	for _, o := range opts {
		r = o(r)
	}
	return r
}

// locate finds the template text.
func (r *Renderer) locate(name string) (string, error) {
	for _, p := range r.paths {
		if _, err := os.Stat(p); err != nil {
			r.log.Warnf("template path %s is configured but does not exist.", p)
			continue
		}
		candidate := filepath.Join(p, name)
		b, err := os.ReadFile(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		r.log.Debugf("using user supplied template: %s", candidate)
		return string(b), nil
	}

	b, err := fs.ReadFile(r.builtin, "builtin/"+filepath.ToSlash(name))
	if err == nil {
		return string(b), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	return "", &ErrTemplateNotFound{
		Name:     name,
		Searched: append(append([]string{}, r.paths...), "(builtin)"),
	}
}

// Render renders a template found by name, and parses its output as YAML documents.
func (r *Renderer) Render(name string, context map[string]any) (Documents, error) {
	text, err := r.locate(name)
	if err != nil {
		return nil, err
	}
	return RenderText(text, context)
}

// RenderText renders text as a template, and parses its output as YAML documents.
func RenderText(text string, context map[string]any) (Documents, error) {
	out, err := RenderString(text, context)
	if err != nil {
		return nil, err
	}
	return documents(out), nil
}

// RenderString renders text as a template.
func RenderString(text string, context map[string]any) (string, error) {
	tpl, err := pongo2.FromString(text)
	if err != nil {
		return "", err
	}
	ctx := pongo2.Context{"now": func() time.Time { return time.Now().UTC() }}
	for k, v := range context {
		ctx[k] = v
	}
	return tpl.Execute(ctx)
}

// Trunc cuts s into max characters, marking it with "..".
func Trunc(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + ".."
}
