package ingest

// Job is the unit of background ingestion work carried over the broker. The
// payload stays small on purpose: the worker re-fetches the document so it
// always indexes the latest content, not a stale copy from the queue.
type Job struct {
	Namespace  string `json:"namespace"`
	DocumentID uint   `json:"document_id"`
}
