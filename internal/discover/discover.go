// Package discover enumerates candidate strategies for a batch run.
//
// Three sources feed the batch: the engine's own listing subcommand, a
// filesystem scan of the strategies root, and the persisted result history.
// The native listing is preferred since the engine applies its own loadability
// checks; when it errors or times out the filesystem scan takes over. Every
// source returns a sorted, duplicate-free slice so batch ordering is
// reproducible and pending-vs-done diffs are stable.
package discover

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stratbatch/internal/engine"
)

// Mode selects the discovery source.
type Mode int

const (
	// ModeAll enumerates every strategy: native listing, falling back to a
	// filesystem scan.
	ModeAll Mode = iota
	// ModeCompatible restricts the filesystem scan to strategies whose
	// definition contains the compatibility marker.
	ModeCompatible
	// ModePrevious re-runs only strategies with a persisted success.
	ModePrevious
)

// History is the slice of the result store discovery needs.
type History interface {
	SuccessfulStrategies() []string
}

// Discoverer enumerates strategies from the engine, the filesystem, or the
// run history.
type Discoverer struct {
	inv     engine.Invoker
	history History

	root    string // strategies root directory
	ext     string // definition file extension, e.g. ".py"
	marker  string // compatibility marker symbol
	timeout time.Duration

	log *slog.Logger
}

// New returns a Discoverer over the given strategies root.
func New(inv engine.Invoker, history History, root, ext, marker string, timeout time.Duration, log *slog.Logger) *Discoverer {
	return &Discoverer{
		inv:     inv,
		history: history,
		root:    root,
		ext:     ext,
		marker:  marker,
		timeout: timeout,
		log:     log.With("component", "discover"),
	}
}

// Discover returns the sorted, deduplicated strategy identifiers for mode.
func (d *Discoverer) Discover(ctx context.Context, mode Mode) ([]string, error) {
	switch mode {
	case ModeCompatible:
		return d.Compatible()
	case ModePrevious:
		return d.history.SuccessfulStrategies(), nil
	default:
		return d.all(ctx)
	}
}

func (d *Discoverer) all(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	names, err := d.inv.ListStrategies(ctx)
	if err == nil && len(names) > 0 {
		return sortedUnique(names), nil
	}
	if err != nil {
		d.log.Warn("native strategy listing failed, scanning filesystem", "error", err)
	} else {
		d.log.Warn("native strategy listing returned nothing, scanning filesystem")
	}
	return d.Scan()
}

// Scan walks the strategies root and accepts each subdirectory holding a
// same-named definition file.
func (d *Discoverer) Scan() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			def := filepath.Join(d.root, name, name+d.ext)
			if _, err := os.Stat(def); err == nil {
				names = append(names, name)
			}
			continue
		}
		// Flat layout: definition files directly under the root.
		if strings.HasSuffix(name, d.ext) {
			names = append(names, strings.TrimSuffix(name, d.ext))
		}
	}
	return sortedUnique(names), nil
}

// Compatible returns the strategies whose definition file mentions the
// compatibility marker. The marker is a heuristic for schema-version
// compatibility, so it is configurable rather than fixed.
func (d *Discoverer) Compatible() ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), d.ext) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			d.log.Warn("skipping unreadable definition", "path", path, "error", err)
			return nil
		}
		if strings.Contains(string(data), d.marker) {
			names = append(names, strings.TrimSuffix(entry.Name(), d.ext))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedUnique(names), nil
}

func sortedUnique(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
