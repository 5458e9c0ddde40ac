package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/daureny/rag-chatbot-be/database"
	"github.com/daureny/rag-chatbot-be/types"
	"github.com/daureny/rag-chatbot-be/utils"
)

const (
	// LockFileName marks an index directory as being written to.
	LockFileName = "index_building.lock"

	lastUpdatedFileName = "last_updated.txt"
	metadataFileName    = "index_metadata.json"
	errorsFileName      = "processing_errors.json"

	timeLayout = "2006-01-02 15:04:05"
)

// BuildResult bundles everything a finished indexing run produced.
type BuildResult struct {
	Index         *database.VectorIndex
	Chunks        *database.ChunkStore
	DocumentCount int
	ChunkCount    int
	ErrorFiles    []types.FileError
	ChunkSize     int
	ChunkOverlap  int
}

// IndexBuilder turns a documents directory into a persisted vector index.
// Embedding runs in batches with a pause between successful batches and a
// single backed-off retry on rate limits.
type IndexBuilder struct {
	embedder Embedder
	splitter *TextSplitter
	loader   *DocumentLoader

	batchSize        int
	batchPause       time.Duration
	rateLimitBackoff time.Duration

	// Progress, when set, receives coarse build milestones for progress.txt.
	Progress func(percent int, message string)
}

func NewIndexBuilder(embedder Embedder, splitter *TextSplitter, loader *DocumentLoader, batchSize int, batchPause, rateLimitBackoff time.Duration) *IndexBuilder {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &IndexBuilder{
		embedder:         embedder,
		splitter:         splitter,
		loader:           loader,
		batchSize:        batchSize,
		batchPause:       batchPause,
		rateLimitBackoff: rateLimitBackoff,
	}
}

func (b *IndexBuilder) progress(percent int, message string) {
	if b.Progress != nil {
		b.Progress(percent, message)
	}
}

// Build loads, splits and embeds every supported document under docsDir.
// Individual file failures are collected, batch failures are skipped; the
// build only fails outright when there is nothing to index or the embedding
// service is unusable.
func (b *IndexBuilder) Build(ctx context.Context, docsDir string, maxDocs int) (*BuildResult, error) {
	log.Printf("Starting document indexing from %s...", docsDir)
	b.progress(5, "Загрузка документов")

	files, err := b.loader.Discover(docsDir, maxDocs)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no supported documents found in %s", docsDir)
	}
	log.Printf("Files to process: %d", len(files))

	// One cheap embedding call up front so a dead API key fails fast
	// instead of after minutes of document parsing.
	if _, err := b.embedder.EmbedQuery(ctx, "тестовый запрос"); err != nil {
		return nil, fmt.Errorf("embedding service check failed: %w", err)
	}

	b.progress(15, "Сканирование файлов")

	var pages []types.DocumentPage
	var errorFiles []types.FileError
	for i, file := range files {
		log.Printf("[%d/%d] Processing file: %s", i+1, len(files), filepath.Base(file))
		filePages, err := b.loader.LoadFile(file)
		if err != nil {
			log.Printf("ERROR processing %s: %v", filepath.Base(file), err)
			errorFiles = append(errorFiles, types.FileError{
				Filename: filepath.Base(file),
				Error:    err.Error(),
			})
			continue
		}
		pages = append(pages, filePages...)
	}
	log.Printf("File processing finished. Pages: %d, errors: %d", len(pages), len(errorFiles))

	if len(pages) == 0 {
		return nil, errors.New("no documents could be loaded for indexing")
	}

	chunks := b.splitter.SplitDocuments(pages)
	log.Printf("Created %d chunks", len(chunks))

	chunkStore := database.NewChunkStore()
	for _, chunk := range chunks {
		chunkStore.Put(chunk.ID, chunk.Text)
	}

	index := database.NewVectorIndex()
	totalBatches := (len(chunks) + b.batchSize - 1) / b.batchSize

	for start := 0; start < len(chunks); start += b.batchSize {
		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		batchNumber := start/b.batchSize + 1
		b.progress(15+70*batchNumber/totalBatches, fmt.Sprintf("Обработка батча %d/%d", batchNumber, totalBatches))
		log.Printf("Processing batch %d/%d, chunks %d-%d...", batchNumber, totalBatches, start, end-1)

		partial, err := b.embedBatch(ctx, batch)
		if err != nil {
			if IsRateLimitError(err) {
				log.Printf("Rate limit hit on batch %d. Waiting %s before retrying...", batchNumber, b.rateLimitBackoff)
				if sleepErr := sleepCtx(ctx, b.rateLimitBackoff); sleepErr != nil {
					return nil, sleepErr
				}
				partial, err = b.embedBatch(ctx, batch)
				if err != nil {
					log.Printf("Batch %d failed after retry, skipping: %v", batchNumber, err)
					continue
				}
			} else {
				log.Printf("Skipping batch %d: %v", batchNumber, err)
				continue
			}
		}

		if err := index.Merge(partial); err != nil {
			return nil, fmt.Errorf("failed to merge batch %d: %w", batchNumber, err)
		}
		log.Printf("Batch %d added to index", batchNumber)

		if end < len(chunks) && b.batchPause > 0 {
			log.Printf("Pausing %s to respect API limits...", b.batchPause)
			if err := sleepCtx(ctx, b.batchPause); err != nil {
				return nil, err
			}
		}
	}

	log.Println("Vector index built successfully")
	return &BuildResult{
		Index:         index,
		Chunks:        chunkStore,
		DocumentCount: len(pages),
		ChunkCount:    len(chunks),
		ErrorFiles:    errorFiles,
		ChunkSize:     b.splitter.chunkSize,
		ChunkOverlap:  b.splitter.chunkOverlap,
	}, nil
}

func (b *IndexBuilder) embedBatch(ctx context.Context, batch []types.Chunk) (*database.VectorIndex, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}
	vectors, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	partial := database.NewVectorIndex()
	for i, chunk := range batch {
		if err := partial.Add(database.VectorRecord{
			ID:     chunk.ID,
			Source: chunk.Metadata.Source,
			Vector: vectors[i],
		}); err != nil {
			return nil, err
		}
	}
	return partial, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SaveIndex persists a build result into dir. The vector index, chunk store
// and metadata must all succeed; the error list, last-updated stamp and
// README are best effort.
func SaveIndex(result *BuildResult, dir string) error {
	log.Printf("Saving index to %s...", dir)

	if err := result.Index.SaveLocal(dir); err != nil {
		return err
	}
	if err := result.Chunks.Save(dir); err != nil {
		return err
	}

	metadata := types.IndexMetadata{
		CreatedAt:     time.Now().Format(time.RFC3339),
		DocumentCount: result.DocumentCount,
		ChunkCount:    result.ChunkCount,
		ErrorCount:    len(result.ErrorFiles),
		ChunkSize:     result.ChunkSize,
		ChunkOverlap:  result.ChunkOverlap,
	}
	if err := writeJSON(filepath.Join(dir, metadataFileName), metadata); err != nil {
		return fmt.Errorf("failed to write index metadata: %w", err)
	}

	if len(result.ErrorFiles) > 0 {
		if err := writeJSON(filepath.Join(dir, errorsFileName), result.ErrorFiles); err != nil {
			log.Printf("Warning: failed to write processing errors: %v", err)
		}
	}

	now := time.Now().Format(timeLayout)
	if err := os.WriteFile(filepath.Join(dir, lastUpdatedFileName), []byte(now+" (индекс создан локально)"), 0644); err != nil {
		log.Printf("Warning: failed to write last-updated stamp: %v", err)
	}

	readme := fmt.Sprintf(`# Индекс для RAG чат-бота

Индекс создан: %s

## Статистика
- Всего документов: %d
- Всего чанков: %d
- Файлов с ошибками: %d

Этот индекс создан автоматически командой build-index.
`, now, result.DocumentCount, result.ChunkCount, len(result.ErrorFiles))
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte(readme), 0644); err != nil {
		log.Printf("Warning: failed to write index README: %v", err)
	}

	log.Println("Index and related files saved")
	return nil
}

// MirrorIndex copies a saved index from srcDir into dstDir, the deployment
// location served at runtime. The destination is cleared first (keeping the
// error log) and held under a lock marker while files are copied.
func MirrorIndex(srcDir, dstDir string) error {
	log.Printf("Copying index from %s to %s...", srcDir, dstDir)

	if _, err := os.Stat(filepath.Join(srcDir, database.VectorsFileName)); err != nil {
		return fmt.Errorf("no index found in %s: %w", srcDir, err)
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := utils.ClearDir(dstDir, "error.log"); err != nil {
		return fmt.Errorf("failed to clear destination directory: %w", err)
	}

	lockPath := filepath.Join(dstDir, LockFileName)
	if err := os.WriteFile(lockPath, []byte("Index copy started at "+time.Now().Format(time.RFC3339)), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := utils.CopyDir(srcDir, dstDir); err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("failed to copy index: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dstDir, "copied_at.txt"), []byte(time.Now().Format(timeLayout)), 0644); err != nil {
		log.Printf("Warning: failed to write copied-at stamp: %v", err)
	}

	os.Remove(lockPath)
	log.Println("Index copied successfully")
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
