// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Matching constants
const (
	// DefaultSimilarityThreshold is the minimum cosine similarity for a face to count as a match
	DefaultSimilarityThreshold = 0.35

	// NormEpsilon is added to vector norms before dividing to avoid division by zero
	NormEpsilon = 1e-8
)

// Frame source constants
const (
	// DefaultVideoStride processes every Nth frame of a video (1 = every frame)
	DefaultVideoStride = 1

	// DefaultReconnectDelay is how long a live stream waits before reopening the source
	DefaultReconnectDelay = 5 * time.Second
)

// Event constants
const (
	// DefaultEventLimit is the default number of events returned by event queries
	DefaultEventLimit = 100

	// DefaultWebhookTimeout bounds a single webhook delivery attempt
	DefaultWebhookTimeout = 5 * time.Second

	// DeliveryQueueSize is the number of events buffered for asynchronous delivery
	DeliveryQueueSize = 1024
)

// Watchlist constants
const (
	// DefaultPersonIDPrefix prefixes generated person identifiers during watchlist build
	DefaultPersonIDPrefix = "person"
)
