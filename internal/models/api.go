package models

// IngestRequest asks the backend to ingest one source screenshot.
type IngestRequest struct {
	Source ObjectRef `json:"source"`
}

// IngestResponse reports the identifiers created by a successful ingest.
type IngestResponse struct {
	RecordID  string    `json:"record_id"`
	Source    ObjectRef `json:"source"`
	Processed ObjectRef `json:"processed"`
}

// SimilarRequest asks for screenshots similar to the source object.
// TopK is optional; the server applies its configured default when unset.
type SimilarRequest struct {
	Source ObjectRef `json:"source"`
	TopK   int       `json:"top_k,omitempty"`
}

// SimilarResult is one match. Score is descending within a result list and
// Object is unique across the list.
type SimilarResult struct {
	Score  float64    `json:"score"`
	Title  string     `json:"title,omitempty"`
	URL    string     `json:"url,omitempty"`
	Object *ObjectRef `json:"object,omitempty"`
}

// SimilarResponse is the response for a similarity request.
type SimilarResponse struct {
	Results []SimilarResult `json:"results"`
}

// EmbedRequest asks the embedding service to embed the source object.
type EmbedRequest struct {
	Source ObjectRef `json:"source"`
}

// EmbedResponse carries the computed embedding vector.
type EmbedResponse struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Vector    []float32 `json:"vector"`
}
