package writer

// PipelineMetadata is the read-only snapshot of the current run exposed to
// the model through the pipeline_metadata tool: enough for the model to
// reference provenance in its output without giving it write access to
// anything.
type PipelineMetadata struct {
	RunID             string
	ConfigFingerprint string
	SourceName        string
	WindowLabel       string
}

// MetadataProvider is implemented by the pipeline runner's context. It is
// a separate interface (rather than the writer importing the pipeline
// package directly) so the pipeline can depend on writer without a cycle.
type MetadataProvider interface {
	Metadata() PipelineMetadata
}
