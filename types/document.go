package types

// DocumentMetadata describes the origin of an extracted page or chunk.
// Source holds the human-readable title used for citations.
type DocumentMetadata struct {
	Source       string `json:"source"`
	Filename     string `json:"filename"`
	DocumentType string `json:"document_type,omitempty"`
	Keywords     string `json:"keywords,omitempty"`
}

// DocumentPage is one unit of extracted text before splitting. PDF files
// yield one page per physical page, other formats yield a single page.
type DocumentPage struct {
	Text     string
	Metadata DocumentMetadata
}

// Chunk is a splitter output ready for embedding.
type Chunk struct {
	ID       string
	Text     string
	Metadata DocumentMetadata
}

// FileError records a document that failed to load during indexing.
type FileError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// IndexMetadata is persisted as index_metadata.json next to the index files.
type IndexMetadata struct {
	CreatedAt     string `json:"created_at"`
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
	ErrorCount    int    `json:"error_count"`
	ChunkSize     int    `json:"chunk_size"`
	ChunkOverlap  int    `json:"chunk_overlap"`
}
