// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Recognition service limits
const (
	// MaxSimilarFaces is the cap on candidates returned by a similarity search.
	// Matches the recognition API's MaxFaces ceiling.
	MaxSimilarFaces = 100

	// MaxImageBytes is the largest inline image the recognition API accepts (5MB)
	MaxImageBytes = 5 << 20
)

// Face tagging constants
const (
	// DefaultSimilarityThreshold is the default minimum similarity (0-100) for tag propagation
	DefaultSimilarityThreshold = 90.0

	// DefaultFaceSearchThreshold is the default minimum similarity for search-by-face-photo
	DefaultFaceSearchThreshold = 80.0

	// DefaultUntaggedLimit is the default number of untagged faces returned for tagging
	DefaultUntaggedLimit = 50
)

// Search constants
const (
	// DefaultLabelConfidence is the default minimum confidence for label search
	DefaultLabelConfidence = 80.0

	// TrigramSize is the n-gram length used by the substring indices
	TrigramSize = 3

	// LocationMetadataKey is the metadata key searched by location queries
	LocationMetadataKey = "location"
)

// Text detection kinds reported by the recognition service
const (
	TextKindLine = "LINE"
	TextKindWord = "WORD"
)

// Processing constants
const (
	// DefaultConcurrency is the default number of parallel workers
	DefaultConcurrency = 4

	// EventChannelBuffer is the buffer size for job event channels
	EventChannelBuffer = 100

	// MaxUploadSize is the maximum file upload size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// TempReferencePrefix is the object key prefix for temporary search images
	TempReferencePrefix = "tmp/"
)
