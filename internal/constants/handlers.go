package constants

// Handler constants
const (
	// MaxUploadBytes caps multipart request bodies for uploads
	MaxUploadBytes = 500 << 20

	// MultipartMemory is the part of a multipart body kept in memory before spilling to disk
	MultipartMemory = 32 << 20
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)
