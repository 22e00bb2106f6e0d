package retrieval

import "testing"

func TestApplyDefaults_ZeroValueGetsAllDefaults(t *testing.T) {
	opts := Options{}
	ApplyDefaults(&opts)

	if opts.TopKSemantic != 5 {
		t.Errorf("Expected TopKSemantic 5, got %d", opts.TopKSemantic)
	}
	if opts.MinScore != 0.4 {
		t.Errorf("Expected MinScore 0.4, got %f", opts.MinScore)
	}
	if opts.PrereqDepth != 2 {
		t.Errorf("Expected PrereqDepth 2, got %d", opts.PrereqDepth)
	}
	if opts.RelatedDepth != 1 {
		t.Errorf("Expected RelatedDepth 1, got %d", opts.RelatedDepth)
	}
	if opts.MaxConcepts != 15 {
		t.Errorf("Expected MaxConcepts 15, got %d", opts.MaxConcepts)
	}
	if opts.MaxExamplesPerConcept != 2 {
		t.Errorf("Expected MaxExamplesPerConcept 2, got %d", opts.MaxExamplesPerConcept)
	}
}

func TestApplyDefaults_SetValuesUntouched(t *testing.T) {
	opts := Options{
		TopKSemantic:          7,
		MinScore:              0.9,
		PrereqDepth:           4,
		RelatedDepth:          2,
		MaxConcepts:           30,
		MaxExamplesPerConcept: 5,
	}
	ApplyDefaults(&opts)

	if opts.TopKSemantic != 7 || opts.MinScore != 0.9 || opts.PrereqDepth != 4 ||
		opts.RelatedDepth != 2 || opts.MaxConcepts != 30 || opts.MaxExamplesPerConcept != 5 {
		t.Errorf("Expected explicit options preserved, got %+v", opts)
	}
}
