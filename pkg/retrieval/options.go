package retrieval

// Options configures one retrieval call. Pass the zero value to get the
// defaults for every knob.
type Options struct {
	// TopKSemantic is the number of semantic matches used as seed
	// candidates (default: 5).
	TopKSemantic int

	// MinScore excludes semantic matches scoring below it (default: 0.4).
	MinScore float64

	// PrereqDepth bounds backward PREREQ_OF traversal from each seed
	// (default: 2).
	PrereqDepth int

	// RelatedDepth bounds peer relation traversal from each seed
	// (default: 1).
	RelatedDepth int

	// MaxConcepts caps the deduplicated concept set; seeds and near
	// prerequisites survive truncation first (default: 15).
	MaxConcepts int

	// MaxExamplesPerConcept caps examples fetched per retained concept
	// (default: 2).
	MaxExamplesPerConcept int
}

// ApplyDefaults sets default values for unspecified options.
func ApplyDefaults(opts *Options) {
	if opts.TopKSemantic <= 0 {
		opts.TopKSemantic = 5
	}
	if opts.MinScore <= 0 {
		opts.MinScore = 0.4
	}
	if opts.PrereqDepth <= 0 {
		opts.PrereqDepth = 2
	}
	if opts.RelatedDepth <= 0 {
		opts.RelatedDepth = 1
	}
	if opts.MaxConcepts <= 0 {
		opts.MaxConcepts = 15
	}
	if opts.MaxExamplesPerConcept <= 0 {
		opts.MaxExamplesPerConcept = 2
	}
}
