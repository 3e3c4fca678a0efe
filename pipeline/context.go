// Package pipeline implements the pipeline runner (C10): the orchestrator
// that drives an adapter's entry stream through windowing, enrichment,
// retrieval, and generation, committing one window at a time so a crashed
// or cancelled run resumes cleanly from the last completed window.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/rivergate/chronicle/adapter"
	"github.com/rivergate/chronicle/cache"
	"github.com/rivergate/chronicle/enrichment"
	"github.com/rivergate/chronicle/llm"
	"github.com/rivergate/chronicle/rag"
	"github.com/rivergate/chronicle/repository"
	"github.com/rivergate/chronicle/runtracker"
	"github.com/rivergate/chronicle/writer"
)

// Context bundles every dependency the runner composes its named steps
// from. It is constructed once per process and handed to NewRunner; the
// runner never reaches for a global to get at any of these.
type Context struct {
	Repo      repository.Store
	Client    *llm.Client
	Index     *rag.Index
	TaskStore enrichment.TaskStore
	Tracker   runtracker.Tracker

	L1 *cache.L1Assets
	L2 *cache.L2Retrieval
	L3 *cache.L3WriterOutput

	Source adapter.Source

	// EnrichmentModel names the model enrichment.NewWorkers submits
	// enrichment calls under.
	EnrichmentModel string

	runID             string
	configFingerprint string
	sourceName        string
	windowLabel       string // current window, set by the runner before Write
}

// Metadata implements writer.MetadataProvider: the single accessor for
// the read-only run snapshot exposed to the model via the
// pipeline_metadata tool. Nothing else in the system assembles this ad
// hoc.
func (c *Context) Metadata() writer.PipelineMetadata {
	return writer.PipelineMetadata{
		RunID:             c.runID,
		ConfigFingerprint: c.configFingerprint,
		SourceName:        c.sourceName,
		WindowLabel:       c.windowLabel,
	}
}

var _ writer.MetadataProvider = (*Context)(nil)

// Params describes one invocation of the runner.
type Params struct {
	// WindowSize, WindowUnit, OverlapRatio override the windowing spec;
	// see window.Create.
	WindowSize   int
	WindowUnit   string
	OverlapRatio float64

	// CheckpointPath, when non-empty, is where the window cursor is
	// persisted between runs in addition to the run tracker, matching
	// §6's "Checkpoint: a single small file with atomic rename."
	CheckpointPath string

	// MediaRoot/MediaTargetDir are passed through to adapter.Source.ExtractMedia.
	MediaRoot      string
	MediaTargetDir string

	// Resume selects resumption behavior: true resumes from the tracker's
	// latest run for this fingerprint; false starts a fresh run even if a
	// prior one exists (the `resume`/`from-scratch` control in §6).
	Resume bool

	// Refresh invalidates the named cache tier, plus the tiers
	// cache.Cascade lists for it (every tier for cache.RefreshAll), before
	// the run starts, per §6's refresh control.
	Refresh cache.RefreshScope

	// Window-splitting state machine budget (§4.10); zero values default.
	MaxSplitDepth int
	MinWindowSize int
	SplitFactor   int
}

// defaults for the window-splitting state machine budget (§4.10).
const (
	defaultMaxSplitDepth = 5
	defaultMinWindowSize = 5
	defaultSplitFactor   = 2
)

func (p Params) withDefaults() Params {
	if p.MaxSplitDepth <= 0 {
		p.MaxSplitDepth = defaultMaxSplitDepth
	}
	if p.MinWindowSize <= 0 {
		p.MinWindowSize = defaultMinWindowSize
	}
	if p.SplitFactor < 2 {
		p.SplitFactor = defaultSplitFactor
	}
	return p
}

// ComputeConfigFingerprint derives the run-identity fingerprint from the
// window spec, source metadata, and adapter version — deliberately
// excluding the writer prompt version (the Open Question in SPEC_FULL.md
// §9, resolved in DESIGN.md): a prompt tweak should invalidate L3 cache
// entries via its own version string, not spawn a new run/cursor lineage
// that re-ingests every entry from scratch.
func ComputeConfigFingerprint(p Params, meta adapter.Metadata) (string, error) {
	normalized := struct {
		WindowSize    int     `yaml:"window_size"`
		WindowUnit    string  `yaml:"window_unit"`
		OverlapRatio  float64 `yaml:"overlap_ratio"`
		SourceName    string  `yaml:"source_name"`
		SchemaVersion string  `yaml:"schema_version"`
		AdapterVer    string  `yaml:"adapter_version"`
	}{
		WindowSize:    p.WindowSize,
		WindowUnit:    p.WindowUnit,
		OverlapRatio:  p.OverlapRatio,
		SourceName:    meta.SourceName,
		SchemaVersion: meta.SchemaVersion,
		AdapterVer:    meta.Version,
	}
	raw, err := yaml.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("pipeline: marshal config fingerprint input: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// ErrFatal wraps an unrecoverable error (auth failed on every key, disk
// full): the run is marked failed and the error summary surfaced, per the
// §7 Fatal error kind.
var ErrFatal = errors.New("pipeline: fatal error")

// classifyFatal reports whether err should end the run as Fatal rather
// than leave it resumable in StatusRunning. Auth/credential exhaustion
// across every rotated key is the chief example named in §7.
func classifyFatal(err error) bool {
	return errors.Is(err, llm.ErrFatal) || errors.Is(err, llm.ErrNoCredentials)
}
