package registry

import (
	"fmt"
	"slices"
	"strings"

	xe "github.com/helxplatform/appstore/pkg/errors"
)

// graph is contexts connected by extends and mixin.
type graph struct {
	contexts map[string]map[string]any
}

func (g graph) names() []string {
	return sortedKeys(g.contexts)
}

// refs reads a list of context names under key.
func (g graph) refs(name string, key string) []string {
	var refs []string
	switch v := g.contexts[name][key].(type) {
	case []any:
		for _, r := range v {
			refs = append(refs, fmt.Sprint(r))
		}
	case string:
		refs = append(refs, v)
	}
	return refs
}

// check finds references to unknown contexts, and cycles of extends.
func (g graph) check() error {
	for _, name := range g.names() {
		for _, key := range []string{keyExtends, keyMixin} {
			for _, ref := range g.refs(name, key) {
				if _, ok := g.contexts[ref]; !ok {
					return xe.NewContext(
						fmt.Sprintf("%s %s of context %s not found in registry.", key, ref, name), nil,
					)
				}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := map[string]int{}
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			i := slices.Index(path, name)
			cycle := append(slices.Clone(path[i:]), name)
			return xe.NewContext(
				fmt.Sprintf("contexts extend each other in a cycle: %s", strings.Join(cycle, " -> ")), nil,
			)
		}
		state[name] = visiting
		for _, base := range g.refs(name, keyExtends) {
			if err := visit(base, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		return nil
	}
	for _, name := range g.names() {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// inherit merges apps of bases, base first, and then apps of the context.
//
// g should be checked.
func (g graph) inherit(name string) map[string]map[string]any {
	merged := map[string]any{}
	var walk func(name string)
	walk = func(name string) {
		for _, base := range g.refs(name, keyExtends) {
			walk(base)
		}
		if apps, ok := g.contexts[name][keyApps].(map[string]any); ok {
			mergeOver(merged, apps)
		}
	}
	walk(name)

	apps := map[string]map[string]any{}
	for id, app := range merged {
		if m, ok := app.(map[string]any); ok {
			apps[id] = m
		} else {
			apps[id] = map[string]any{}
		}
	}
	return apps
}

// mixins lists contexts mixed into the context or its bases, base first.
//
// g should be checked.
func (g graph) mixins(name string) []string {
	var mixins []string
	var walk func(name string)
	walk = func(name string) {
		for _, base := range g.refs(name, keyExtends) {
			walk(base)
		}
		mixins = append(mixins, g.refs(name, keyMixin)...)
	}
	walk(name)
	return mixins
}
