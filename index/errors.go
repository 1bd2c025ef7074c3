package index

import "errors"

var (
	// ErrCorruptSnapshot indicates a serialized index could not be decoded.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")

	// ErrIndexInUse indicates an attempt to decode into an index that
	// already holds entries.
	ErrIndexInUse = errors.New("index already initialized")

	// ErrUnknownMetric indicates a metric name or tag that is not supported.
	ErrUnknownMetric = errors.New("unknown similarity metric")

	// ErrUnknownKind indicates a layout name or tag that is not supported.
	ErrUnknownKind = errors.New("unknown index kind")
)
