package types

type DataResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SourceCitation is one deduplicated source shown alongside an answer.
type SourceCitation struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type AskResponse struct {
	Answer  string           `json:"answer"`
	Sources []SourceCitation `json:"sources"`
}

// IndexingStatus mirrors the progress.txt state for the status endpoint.
type IndexingStatus struct {
	Status  string `json:"status"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}
