package loader

import "errors"

var (
	// ErrUnsupportedFormat indicates a file extension the loader cannot read.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrInvalidScrape indicates scraped-site JSON that cannot be decoded.
	ErrInvalidScrape = errors.New("invalid site scrape")

	// ErrInvalidMinWords indicates a negative minimum word count.
	ErrInvalidMinWords = errors.New("minimum words must not be negative")
)
