package iiod

import (
	"github.com/goiiod/iiod/internal/uri"
	"github.com/goiiod/iiod/internal/usbtransport"
	"github.com/goiiod/iiod/internal/wire"
)

// Re-exported wire, transport, and discovery constants for callers who
// don't need to reach into internal packages directly.
const (
	HeaderSize         = wire.HeaderSize
	MaxVector          = wire.MaxVector
	DefaultPort        = uri.DefaultPort
	BulkTransferMax    = usbtransport.BulkTransferMax
	DefaultDataTimeout = usbtransport.DefaultDataTimeout
)
