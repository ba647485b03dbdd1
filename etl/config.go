package etl

import "github.com/go-playground/validator/v10"

// DefaultQueueMaxSize is the input-queue bound, in batches, applied to any
// Transformer, Filter, or Loader configuration that does not set
// QueueMaxSize explicitly.
const DefaultQueueMaxSize = 10_000

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// ExtractorConfig configures an Extractor node.
type ExtractorConfig struct {
	// BatchSize is the number of items accumulated into one emitted batch.
	// The final, possibly partial, batch is flushed when the extractor is
	// exhausted.
	BatchSize int `validate:"gt=0"`
	// MainProcessAffinity pins this node to the engine's own goroutine tree
	// instead of a replicated worker group. Extractors default to true: a
	// data source usually must not be consumed by more than one replica.
	MainProcessAffinity bool
}

// DefaultExtractorConfig returns the configuration cupyd's ExtractorConfiguration
// defaults to: a batch size of 1000 with main-process affinity enabled.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{BatchSize: 1000, MainProcessAffinity: true}
}

// processorConfig holds the fields shared by Transformer, Filter, and Loader
// configuration records.
type processorConfig struct {
	// InputKey, when non-empty, is looked up on each incoming item (via the
	// Keyed capability, see kinds.go) instead of passing the item itself.
	InputKey string
	// MainProcessAffinity places this node in a main-process segment, which
	// runs as a single, unreplicated instance (connected main-process nodes
	// share one segment). Defaults to false for processing nodes.
	MainProcessAffinity bool
	// QueueMaxSize bounds this node's input connector, in batches. Zero
	// means DefaultQueueMaxSize.
	QueueMaxSize int `validate:"gte=0"`
}

func (c processorConfig) effectiveQueueMaxSize() int {
	if c.QueueMaxSize <= 0 {
		return DefaultQueueMaxSize
	}
	return c.QueueMaxSize
}

// TransformerConfig configures a Transformer node.
type TransformerConfig struct {
	InputKey            string
	MainProcessAffinity bool
	QueueMaxSize        int `validate:"gte=0"`
}

func (c TransformerConfig) toProcessor() processorConfig {
	return processorConfig{InputKey: c.InputKey, MainProcessAffinity: c.MainProcessAffinity, QueueMaxSize: c.QueueMaxSize}
}

// FilterConfig configures a Filter node.
type FilterConfig struct {
	InputKey            string
	MainProcessAffinity bool
	QueueMaxSize        int `validate:"gte=0"`
	// FilterValue is compared against the Filter's Check result; items for
	// which the comparison holds are dropped. Defaults to nil, matching
	// cupyd's value_to_filter=None (items whose Check returns nil are
	// dropped by default).
	FilterValue any
	// DisableSafeCopy skips the per-item copy (cloneItem, see kinds.go's
	// Cloner) otherwise made for every downstream consumer beyond the first.
	DisableSafeCopy bool
}

func (c FilterConfig) toProcessor() processorConfig {
	return processorConfig{InputKey: c.InputKey, MainProcessAffinity: c.MainProcessAffinity, QueueMaxSize: c.QueueMaxSize}
}

// LoaderConfig configures a Loader node.
type LoaderConfig struct {
	InputKey            string
	MainProcessAffinity bool
	QueueMaxSize        int `validate:"gte=0"`
	DisableSafeCopy     bool
}

func (c LoaderConfig) toProcessor() processorConfig {
	return processorConfig{InputKey: c.InputKey, MainProcessAffinity: c.MainProcessAffinity, QueueMaxSize: c.QueueMaxSize}
}

// BulkerConfig configures a Bulker node.
type BulkerConfig struct {
	// TargetBulkSize is the number of items grouped into each emitted bulk.
	// A shorter remainder bulk is flushed once the upstream is exhausted,
	// provided no error occurred.
	TargetBulkSize      int `validate:"gt=0"`
	MainProcessAffinity bool
	QueueMaxSize        int `validate:"gte=0"`
}

// DeBulkerConfig configures a DeBulker node, which fans each incoming bulk
// back out as individual single-item batches.
type DeBulkerConfig struct {
	MainProcessAffinity bool
	QueueMaxSize        int `validate:"gte=0"`
}

func validateConfig(name string, cfg any) error {
	if err := configValidator.Struct(cfg); err != nil {
		return &ConfigurationError{NodeName: name, Cause: err}
	}
	return nil
}
