// Package detect decides which translation units must be recompiled by
// fingerprinting their preprocessed output.
//
// Hashing preprocessed output instead of source text means an edit to any
// transitively included header changes the fingerprint of every unit that
// includes it, with no include graph to build or maintain. The price is one
// preprocessor run per unit per build.
package detect

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/fpmake/internal/fingerprint"
	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
	"git.home.luguber.info/inful/fpmake/internal/logfields"
	"git.home.luguber.info/inful/fpmake/internal/source"
)

// Reason explains why a unit is scheduled.
type Reason string

const (
	ReasonNew     Reason = "new"     // no cache entry: first sighting or failed last time
	ReasonChanged Reason = "changed" // fingerprint differs from the cache
	// ReasonMissingObject marks an unchanged unit whose object file is gone.
	ReasonMissingObject Reason = "missing-object"
)

// Change is a unit that needs compiling.
type Change struct {
	File   source.File
	Reason Reason
}

// Result is the outcome of change detection.
type Result struct {
	// Fingerprints holds a fresh fingerprint for every discovered unit.
	Fingerprints fingerprint.Set
	// Changed lists units to compile, in discovery order.
	Changed []Change
}

// Preprocessor is the part of the toolchain the detector needs.
type Preprocessor interface {
	Preprocess(ctx context.Context, f source.File) ([]byte, error)
}

// Detector compares fresh fingerprints against the previous build's.
type Detector struct {
	pp         Preprocessor
	limit      int
	objectRoot string
	logger     *slog.Logger
}

// NewDetector creates a Detector running at most limit preprocessors at once.
func NewDetector(pp Preprocessor, limit int) *Detector {
	if limit <= 0 {
		limit = 1
	}
	return &Detector{pp: pp, limit: limit, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (d *Detector) WithLogger(logger *slog.Logger) *Detector {
	d.logger = logger
	return d
}

// WithObjectRoot makes the detector also schedule unchanged units whose
// object file is missing under root. An empty root disables the check.
func (d *Detector) WithObjectRoot(root string) *Detector {
	d.objectRoot = root
	return d
}

// Detect fingerprints every file and marks those whose fingerprint is absent
// from prior or differs from it. The first preprocessing failure cancels the
// remaining work and is returned as a fingerprint error: without a fingerprint
// there is no way to decide whether to compile.
func (d *Detector) Detect(ctx context.Context, files []source.File, prior fingerprint.Set) (*Result, error) {
	start := time.Now()
	fresh := make([]fingerprint.Fingerprint, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit)
	var failMu sync.Mutex
	var failed *source.File

	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := d.pp.Preprocess(gctx, f)
			if err != nil {
				failMu.Lock()
				if failed == nil {
					failed = &f
				}
				failMu.Unlock()
				return err
			}
			fresh[i] = fingerprint.Sum(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b := errors.FingerprintError("failed to preprocess source").WithCause(err)
		if failed != nil {
			b = b.WithContext("source", failed.Rel)
		}
		return nil, b.Build()
	}

	res := &Result{Fingerprints: make(fingerprint.Set, len(files))}
	for i, f := range files {
		fp := fresh[i]
		res.Fingerprints[f.Rel] = fp

		old, known := prior[f.Rel]
		switch {
		case !known:
			res.Changed = append(res.Changed, Change{File: f, Reason: ReasonNew})
		case old != fp:
			res.Changed = append(res.Changed, Change{File: f, Reason: ReasonChanged})
		case d.objectMissing(f):
			res.Changed = append(res.Changed, Change{File: f, Reason: ReasonMissingObject})
		default:
			continue
		}
		d.logger.Debug("Unit scheduled",
			logfields.Source(f.Rel),
			logfields.Fingerprint(fp.Short()),
			slog.String("reason", string(res.Changed[len(res.Changed)-1].Reason)))
	}

	d.logger.Info("Change detection complete",
		slog.Int("units", len(files)),
		slog.Int("changed", len(res.Changed)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return res, nil
}

func (d *Detector) objectMissing(f source.File) bool {
	if d.objectRoot == "" {
		return false
	}
	_, err := os.Stat(f.ObjectPath(d.objectRoot))
	return stderrors.Is(err, fs.ErrNotExist)
}

// Files returns the files of the changes, in order.
func (r *Result) Files() []source.File {
	out := make([]source.File, len(r.Changed))
	for i, c := range r.Changed {
		out[i] = c.File
	}
	return out
}
