package storagemodels

import (
	"time"
)

// StreamResult represents a single record in a stream with metadata
type StreamResult struct {
	Record Record     // The record, nil when Error is set
	Error  error      // Terminal error; the stream closes after it
	Meta   StreamMeta // Metadata about this record
}

// StreamMeta contains metadata about a streamed record
type StreamMeta struct {
	Index     int64     // Record index in stream (0-based)
	Timestamp time.Time // When the record was handed to the stream
}

// StreamOptions configures streaming behavior
type StreamOptions struct {
	BufferSize       int                  // Channel buffer size (default: 100)
	ProgressInterval int64                // Report progress every N records (default: 100)
	ProgressHandler  func(StreamProgress) // Optional progress callback
}

// StreamProgress tracks streaming progress
type StreamProgress struct {
	ItemsProcessed int64     // Total records processed
	StartTime      time.Time // When streaming started
	CurrentRate    float64   // Records per second
	Done           bool      // Set on the final report
}

// StreamOption is a functional option for configuring streaming
type StreamOption func(*StreamOptions)

// DefaultStreamOptions returns default streaming options
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		BufferSize:       100,
		ProgressInterval: 100,
	}
}

// WithBufferSize sets the channel buffer size
func WithBufferSize(size int) StreamOption {
	return func(opts *StreamOptions) {
		opts.BufferSize = size
	}
}

// WithProgressInterval sets how many records pass between progress reports
func WithProgressInterval(n int64) StreamOption {
	return func(opts *StreamOptions) {
		opts.ProgressInterval = n
	}
}

// WithProgressHandler sets a progress callback
func WithProgressHandler(handler func(StreamProgress)) StreamOption {
	return func(opts *StreamOptions) {
		opts.ProgressHandler = handler
	}
}
