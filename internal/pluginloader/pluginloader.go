// Package pluginloader implements spec §6's loadPlugins(searchpath): scan a
// colon-separated (here, slice-of-directories) search path, interpret every
// plugin source file found, and register the atoms/propagators it exports
// into a plugin.Registry, after checking its ABI-version function matches
// the host's.
//
// The original dlvhex loads native shared libraries via dlopen and a
// PLUGINIMPORTFUNCTION symbol. A Go binary cannot dlopen a .so built from
// ordinary Go source and recover typed values from it across the C ABI
// boundary, so this reimplements the same discovery contract — a named
// entry point, an ABI-version guard — over yaegi's Go-source interpreter
// instead, the same sandboxed-interpretation technique the teacher uses for
// its own dynamically-supplied tool code (internal/autopoiesis/
// yaegi_executor.go).
package pluginloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"hexsolve/internal/plugin"
)

// ABIVersion is the host's plugin ABI version. A plugin source file's
// PLUGINABIVERSION() must return this exact value to be loaded.
const ABIVersion = 1

// hexsolvePluginSymbols exposes hexsolve/internal/plugin to interpreted
// plugin source, playing the role a `yaegi extract` generated table would;
// hand-written here since the Go toolchain (and so `yaegi extract`) cannot
// be invoked in this session.
var hexsolvePluginSymbols = map[string]map[string]reflect.Value{
	"hexsolve/internal/plugin/plugin": {
		"Constant":  reflect.ValueOf(plugin.Constant),
		"Predicate": reflect.ValueOf(plugin.Predicate),
		"Tuple":     reflect.ValueOf(plugin.Tuple),
		// Types are exposed as a typed nil pointer, yaegi's convention for
		// letting interpreted source declare variables of these types.
		"Answer":     reflect.ValueOf((*plugin.Answer)(nil)),
		"Query":      reflect.ValueOf((*plugin.Query)(nil)),
		"Properties": reflect.ValueOf((*plugin.Properties)(nil)),
		"InputKind":  reflect.ValueOf((*plugin.InputKind)(nil)),
		"Atom":       reflect.ValueOf((*plugin.Atom)(nil)),
		"Propagator": reflect.ValueOf((*plugin.Propagator)(nil)),
	},
}

// Discovered is one successfully loaded plugin source file's contribution.
type Discovered struct {
	Path        string
	Atoms       []plugin.Atom
	Propagators []plugin.Propagator
}

// Load scans each directory in searchPaths for *.go plugin source files,
// interprets each with yaegi, and registers every atom/propagator it
// exports into reg. A missing directory is skipped, not an error (mirrors
// loadPlugins' tolerance of an unconfigured search path entry).
func Load(searchPaths []string, reg *plugin.Registry) ([]Discovered, error) {
	var out []Discovered
	for _, dir := range searchPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return out, fmt.Errorf("plugin search path %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			d, err := loadOne(path, reg)
			if err != nil {
				return out, fmt.Errorf("loading plugin %s: %w", path, err)
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func loadOne(path string, reg *plugin.Registry) (Discovered, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Discovered{}, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return Discovered{}, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(hexsolvePluginSymbols); err != nil {
		return Discovered{}, fmt.Errorf("load plugin symbols: %w", err)
	}

	if _, err := i.Eval(string(src)); err != nil {
		return Discovered{}, fmt.Errorf("eval: %w", err)
	}

	abiFn, err := i.Eval("main.PLUGINABIVERSION")
	if err != nil {
		return Discovered{}, fmt.Errorf("PLUGINABIVERSION not found: %w", err)
	}
	abi, ok := abiFn.Interface().(func() int)
	if !ok {
		return Discovered{}, fmt.Errorf("PLUGINABIVERSION has the wrong signature, want func() int")
	}
	if v := abi(); v != ABIVersion {
		return Discovered{}, fmt.Errorf("ABI version mismatch: plugin wants %d, host is %d", v, ABIVersion)
	}

	importFn, err := i.Eval("main.PLUGINIMPORTFUNCTION")
	if err != nil {
		return Discovered{}, fmt.Errorf("PLUGINIMPORTFUNCTION not found: %w", err)
	}
	fn, ok := importFn.Interface().(func() ([]plugin.Atom, []plugin.Propagator))
	if !ok {
		return Discovered{}, fmt.Errorf("PLUGINIMPORTFUNCTION has the wrong signature, want func() ([]plugin.Atom, []plugin.Propagator)")
	}

	atoms, props := fn()
	for _, a := range atoms {
		reg.RegisterAtom(a)
	}
	for _, p := range props {
		reg.RegisterPropagator(p)
	}
	return Discovered{Path: path, Atoms: atoms, Propagators: props}, nil
}

// Watch observes every directory in searchPaths for plugin file changes and
// invokes reload whenever a .go file is created, written, or removed, so a
// long-running session can pick up new or updated plugins without a
// restart. The returned watcher is closed when ctx is cancelled.
func Watch(ctx context.Context, searchPaths []string, reload func()) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create plugin watcher: %w", err)
	}
	for _, dir := range searchPaths {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch plugin path %s: %w", dir, err)
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				w.Close()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if strings.HasSuffix(ev.Name, ".go") {
					reload()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w, nil
}
