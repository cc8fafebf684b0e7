// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package dedicatedworker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// ErrNotFound may be returned by a [Loader] for an unknown URL.
var ErrNotFound = errors.New("dedicatedworker: script not found")

// Request describes a script fetch.
type Request struct {
	Security    Security
	URL         string
	Origin      string
	Destination string
}

// Resource is a fetched script body.
type Resource struct {
	// URL is the final URL, after any redirects. Defaults to the requested
	// URL if empty.
	URL  string
	Body string
}

// Loader fetches worker scripts. Load is called on the worker thread, and
// ctx is canceled if the worker starts closing.
type Loader interface {
	Load(ctx context.Context, req Request) (*Resource, error)
}

// LoaderFunc adapts a function to [Loader].
type LoaderFunc func(ctx context.Context, req Request) (*Resource, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, req Request) (*Resource, error) {
	return f(ctx, req)
}

// MapLoader serves scripts from memory, keyed by URL.
type MapLoader map[string]string

// Load implements Loader.
func (m MapLoader) Load(ctx context.Context, req Request) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, ok := m[req.URL]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL)
	}
	return &Resource{URL: req.URL, Body: body}, nil
}

// FileLoader serves scripts from the local filesystem. URLs may be plain
// paths, or file URLs. Relative paths are resolved against Root.
type FileLoader struct {
	Root string
}

// Load implements Loader.
func (l FileLoader) Load(ctx context.Context, req Request) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := req.URL
	if u, err := url.Parse(req.URL); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	if !filepath.IsAbs(path) && l.Root != "" {
		path = filepath.Join(l.Root, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL)
		}
		return nil, err
	}
	return &Resource{URL: req.URL, Body: string(b)}, nil
}

// resolveURL resolves ref against base, as used by importScripts. Values
// that do not parse as URLs are returned unchanged.
func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return ref
	}
	if b.Scheme == "" && b.Host == "" {
		if r.Path == "" || filepath.IsAbs(r.Path) {
			return ref
		}
		return filepath.Join(filepath.Dir(b.Path), r.Path)
	}
	return b.ResolveReference(r).String()
}
