package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/daureny/rag-chatbot-be/database"
	"github.com/daureny/rag-chatbot-be/types"
)

// Stale lock markers older than this are treated as leftovers of a crashed
// rebuild and taken over.
const lockStaleAge = 3 * time.Hour

const progressFileName = "progress.txt"

// ErrRebuildInProgress is returned when a rebuild is requested while another
// one still holds the lock.
var ErrRebuildInProgress = errors.New("index rebuild already in progress")

// RetrievedDoc is a chunk resolved for answering, carrying its citation
// title.
type RetrievedDoc struct {
	Title   string
	Content string
}

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k, fetchK int, lambda float64) ([]RetrievedDoc, error)
}

// IndexManager owns the runtime copy of the index: lazy loading, retrieval
// and coordinated background rebuilds.
type IndexManager struct {
	indexDir      string
	localIndexDir string
	docsDir       string
	embedder      Embedder
	builder       *IndexBuilder

	mu     sync.Mutex
	index  *database.VectorIndex
	chunks *database.ChunkStore
}

func NewIndexManager(indexDir, localIndexDir, docsDir string, embedder Embedder, builder *IndexBuilder) *IndexManager {
	return &IndexManager{
		indexDir:      indexDir,
		localIndexDir: localIndexDir,
		docsDir:       docsDir,
		embedder:      embedder,
		builder:       builder,
	}
}

// IndexExists reports whether the served index directory holds an index.
func (m *IndexManager) IndexExists() bool {
	_, err := os.Stat(filepath.Join(m.indexDir, database.VectorsFileName))
	return err == nil
}

// LocalIndexExists reports whether a project-local index is available for
// mirroring.
func (m *IndexManager) LocalIndexExists() bool {
	_, err := os.Stat(filepath.Join(m.localIndexDir, database.VectorsFileName))
	return err == nil
}

// load returns the cached index and chunk store, reading them from disk on
// first use. When the served directory is empty but a local index exists, the
// local one is mirrored in first.
func (m *IndexManager) load() (*database.VectorIndex, *database.ChunkStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.index != nil && m.chunks != nil {
		return m.index, m.chunks, nil
	}

	if !m.IndexExists() {
		if !m.LocalIndexExists() {
			return nil, nil, errors.New("index not found in persistent storage or local directory")
		}
		log.Println("Index missing from persistent storage, copying local index...")
		if err := MirrorIndex(m.localIndexDir, m.indexDir); err != nil {
			return nil, nil, fmt.Errorf("failed to copy local index: %w", err)
		}
	}

	index, err := database.LoadLocal(m.indexDir)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := database.LoadChunkStore(m.indexDir)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Vector index loaded: %d vectors, %d chunks", index.Len(), chunks.Len())

	m.index = index
	m.chunks = chunks
	return index, chunks, nil
}

// Invalidate drops the cached index so the next query reloads from disk.
func (m *IndexManager) Invalidate() {
	m.mu.Lock()
	m.index = nil
	m.chunks = nil
	m.mu.Unlock()
}

// Retrieve embeds the query and selects diverse relevant chunks with MMR.
func (m *IndexManager) Retrieve(ctx context.Context, query string, k, fetchK int, lambda float64) ([]RetrievedDoc, error) {
	index, chunks, err := m.load()
	if err != nil {
		return nil, err
	}

	vector, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits := index.SearchMMR(vector, k, fetchK, lambda)
	docs := make([]RetrievedDoc, 0, len(hits))
	for _, hit := range hits {
		text, ok := chunks.Get(hit.ID)
		if !ok {
			log.Printf("Warning: chunk %s missing from chunk store", hit.ID)
			continue
		}
		title := hit.Source
		if title == "" {
			title = "Источник неизвестен"
		}
		docs = append(docs, RetrievedDoc{Title: title, Content: text})
	}
	return docs, nil
}

func (m *IndexManager) lockPath() string {
	return filepath.Join(m.indexDir, LockFileName)
}

// IsBuilding reports whether a rebuild currently holds the lock marker.
func (m *IndexManager) IsBuilding() bool {
	_, err := os.Stat(m.lockPath())
	return err == nil
}

// ClearStaleLock removes a lock marker left behind by a crashed rebuild.
// Called once at startup.
func (m *IndexManager) ClearStaleLock() {
	info, err := os.Stat(m.lockPath())
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > lockStaleAge {
		log.Println("Removing stale index lock...")
		os.Remove(m.lockPath())
	}
}

// StartRebuild launches a full reindex of the documents directory on a
// background goroutine. Returns ErrRebuildInProgress when a live rebuild
// already holds the lock; a lock older than three hours is taken over.
func (m *IndexManager) StartRebuild() error {
	if m.IsBuilding() {
		info, err := os.Stat(m.lockPath())
		if err == nil && time.Since(info.ModTime()) <= lockStaleAge {
			return ErrRebuildInProgress
		}
		log.Println("Found stale index lock, taking over...")
		os.Remove(m.lockPath())
	}

	if err := os.MkdirAll(m.indexDir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	if err := os.WriteFile(m.lockPath(), []byte("Index rebuild started at "+time.Now().Format(time.RFC3339)), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	m.writeProgress(0, "Индексация начата")

	go m.rebuild()
	return nil
}

func (m *IndexManager) rebuild() {
	defer os.Remove(m.lockPath())

	m.builder.Progress = m.writeProgress
	defer func() { m.builder.Progress = nil }()

	result, err := m.builder.Build(context.Background(), m.docsDir, 0)
	if err != nil {
		log.Printf("Index rebuild failed: %v", err)
		m.writeProgress(100, "Ошибка: "+err.Error())
		return
	}

	m.writeProgress(85, "Объединение индексов")
	if err := SaveIndex(result, m.indexDir); err != nil {
		log.Printf("Failed to save rebuilt index: %v", err)
		m.writeProgress(100, "Ошибка: "+err.Error())
		return
	}

	m.Invalidate()
	m.writeProgress(100, "Индексация завершена")
	log.Printf("Index rebuilt: %d documents, %d chunks", result.DocumentCount, result.ChunkCount)
}

func (m *IndexManager) writeProgress(percent int, message string) {
	line := fmt.Sprintf("%d,%s", percent, message)
	if err := os.WriteFile(filepath.Join(m.indexDir, progressFileName), []byte(line), 0644); err != nil {
		log.Printf("Warning: failed to write progress file: %v", err)
	}
}

// Status reports the current indexing state for the status endpoint.
func (m *IndexManager) Status() types.IndexingStatus {
	if m.IsBuilding() {
		data, err := os.ReadFile(filepath.Join(m.indexDir, progressFileName))
		if err == nil {
			parts := strings.SplitN(strings.TrimSpace(string(data)), ",", 2)
			if len(parts) == 2 {
				if percent, err := strconv.Atoi(parts[0]); err == nil {
					return types.IndexingStatus{Status: "in_progress", Percent: percent, Message: parts[1]}
				}
			}
		}
		return types.IndexingStatus{Status: "in_progress", Percent: 0, Message: "Индексация начата"}
	}

	if m.IndexExists() {
		message := "Индексация завершена"
		if data, err := os.ReadFile(filepath.Join(m.indexDir, lastUpdatedFileName)); err == nil {
			message = fmt.Sprintf("Индексация завершена. Последнее обновление: %s", strings.TrimSpace(string(data)))
		}
		return types.IndexingStatus{Status: "completed", Percent: 100, Message: message}
	}

	return types.IndexingStatus{Status: "not_started", Percent: 0, Message: "Индекс не найден и не строится"}
}

// LastUpdated reads the persisted update and copy stamps of the served index.
func (m *IndexManager) LastUpdated() (lastUpdated, copiedAt string) {
	if data, err := os.ReadFile(filepath.Join(m.indexDir, lastUpdatedFileName)); err == nil {
		lastUpdated = strings.TrimSpace(string(data))
	}
	if data, err := os.ReadFile(filepath.Join(m.indexDir, "copied_at.txt")); err == nil {
		copiedAt = strings.TrimSpace(string(data))
	}
	return lastUpdated, copiedAt
}

// UpdateFromLocal mirrors the project-local index into the served directory
// and drops the cache.
func (m *IndexManager) UpdateFromLocal() error {
	if err := MirrorIndex(m.localIndexDir, m.indexDir); err != nil {
		return err
	}
	m.Invalidate()
	return nil
}

// SyncOnStartup mirrors the local index into the served directory when the
// served copy is missing or older.
func (m *IndexManager) SyncOnStartup() {
	m.ClearStaleLock()

	localPath := filepath.Join(m.localIndexDir, database.VectorsFileName)
	servedPath := filepath.Join(m.indexDir, database.VectorsFileName)

	localInfo, localErr := os.Stat(localPath)
	servedInfo, servedErr := os.Stat(servedPath)

	switch {
	case servedErr != nil && localErr == nil:
		log.Println("Index missing from persistent storage. Copying local index...")
		if err := MirrorIndex(m.localIndexDir, m.indexDir); err != nil {
			log.Printf("Failed to copy local index: %v", err)
		}
	case servedErr == nil && localErr == nil && localInfo.ModTime().After(servedInfo.ModTime()):
		log.Println("Local index is newer. Updating persistent storage...")
		if err := MirrorIndex(m.localIndexDir, m.indexDir); err != nil {
			log.Printf("Failed to update index: %v", err)
		}
	case servedErr == nil:
		log.Println("Index in persistent storage is up to date.")
	default:
		log.Println("WARNING: index not found in persistent storage or locally!")
	}
}

// Metadata reads index_metadata.json from the served index directory.
func (m *IndexManager) Metadata() (*types.IndexMetadata, error) {
	data, err := os.ReadFile(filepath.Join(m.indexDir, metadataFileName))
	if err != nil {
		return nil, err
	}
	var metadata types.IndexMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// ChunkCount reports the size of the persisted chunk store, loading it if
// needed.
func (m *IndexManager) ChunkCount() (int, error) {
	chunks, err := database.LoadChunkStore(m.indexDir)
	if err != nil {
		return 0, err
	}
	return chunks.Len(), nil
}

// IndexDir is the served index location, exposed for info endpoints.
func (m *IndexManager) IndexDir() string {
	return m.indexDir
}
