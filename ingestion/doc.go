// Package ingestion builds vector indexes from documents.
//
// The Builder chunks documents, embeds the passages in batches on a worker
// pool and inserts them into a fresh index in document order:
//   - failed batches are retried with exponential backoff
//   - a batch that keeps failing is split in half until single passages remain
//   - the finished index is returned ready to be swapped into service
//
// Nothing is published until the whole build succeeds.
package ingestion
