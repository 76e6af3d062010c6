package surrogate

// Model predicts trial cost from an encoded configuration.
type Model interface {
	// Train fits the model to the given rows. Implementations replace any
	// previously fitted state.
	Train(X [][]float64, y []float64) error

	// Predict returns the predicted mean cost and its variance at x.
	Predict(x []float64) (mean, variance float64)
}

// TreeNode is a read-only traversal handle into one tree of an ensemble.
// A continuous split sends x left when x[Feature()] <= Threshold(); a
// categorical split sends x left when x[Feature()] is in Categories().
type TreeNode interface {
	Leaf() bool
	Feature() int
	Threshold() float64

	// Categories returns the left-going value set of a categorical split,
	// or nil for continuous splits and leaves.
	Categories() []int

	Left() TreeNode
	Right() TreeNode
}

// Ensemble is a tree-ensemble model exposing its trees for traversal.
type Ensemble interface {
	Model

	// Trees returns one root handle per tree. The returned handles are
	// read-only and safe to traverse concurrently.
	Trees() []TreeNode
}
