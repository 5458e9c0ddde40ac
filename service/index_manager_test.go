package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daureny/rag-chatbot-be/database"
)

func savedIndexDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	index := database.NewVectorIndex()
	require.NoError(t, index.Add(
		database.VectorRecord{ID: "c1", Source: "Закон о банках (zakon.txt)", Vector: []float32{1, 0}},
		database.VectorRecord{ID: "c2", Source: "", Vector: []float32{0, 1}},
	))
	chunks := database.NewChunkStore()
	chunks.Put("c1", "Банк обязан поддерживать достаточность капитала.")
	chunks.Put("c2", "Фрагмент без названия источника.")
	require.NoError(t, SaveIndex(&BuildResult{
		Index:         index,
		Chunks:        chunks,
		DocumentCount: 2,
		ChunkCount:    2,
		ChunkSize:     4000,
		ChunkOverlap:  500,
	}, dir))
	return dir
}

type queryEmbedder struct {
	vector []float32
}

func (e *queryEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = e.vector
	}
	return vectors, nil
}

func (e *queryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vector, nil
}

func TestIndexManagerRetrieveResolvesChunksAndTitles(t *testing.T) {
	indexDir := savedIndexDir(t)
	embedder := &queryEmbedder{vector: []float32{1, 0.1}}
	manager := NewIndexManager(indexDir, t.TempDir(), t.TempDir(), embedder, nil)

	docs, err := manager.Retrieve(context.Background(), "требования к капиталу", 2, 4, 0.7)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Закон о банках (zakon.txt)", docs[0].Title)
	assert.Equal(t, "Банк обязан поддерживать достаточность капитала.", docs[0].Content)
	assert.Equal(t, "Источник неизвестен", docs[1].Title, "records without a source get a placeholder title")
}

func TestIndexManagerRetrieveFailsWithoutAnyIndex(t *testing.T) {
	embedder := &queryEmbedder{vector: []float32{1, 0}}
	manager := NewIndexManager(t.TempDir(), t.TempDir(), t.TempDir(), embedder, nil)

	_, err := manager.Retrieve(context.Background(), "вопрос", 2, 4, 0.7)

	assert.Error(t, err)
}

func TestIndexManagerCopiesLocalIndexOnFirstLoad(t *testing.T) {
	localDir := savedIndexDir(t)
	indexDir := t.TempDir()
	embedder := &queryEmbedder{vector: []float32{1, 0}}
	manager := NewIndexManager(indexDir, localDir, t.TempDir(), embedder, nil)

	docs, err := manager.Retrieve(context.Background(), "вопрос", 1, 2, 0.7)

	require.NoError(t, err)
	assert.NotEmpty(t, docs)
	assert.FileExists(t, filepath.Join(indexDir, database.VectorsFileName), "local index is mirrored into the served directory")
}

func TestClearStaleLock(t *testing.T) {
	indexDir := t.TempDir()
	manager := NewIndexManager(indexDir, t.TempDir(), t.TempDir(), nil, nil)
	lockPath := filepath.Join(indexDir, LockFileName)

	require.NoError(t, os.WriteFile(lockPath, []byte("busy"), 0644))
	manager.ClearStaleLock()
	assert.FileExists(t, lockPath, "a fresh lock belongs to a live rebuild")

	old := time.Now().Add(-4 * time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))
	manager.ClearStaleLock()
	assert.NoFileExists(t, lockPath)
}

func TestSyncOnStartupPrefersNewerLocalIndex(t *testing.T) {
	localDir := savedIndexDir(t)
	indexDir := savedIndexDir(t)

	// Make the served copy look older than the local one.
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(indexDir, database.VectorsFileName), old, old))

	manager := NewIndexManager(indexDir, localDir, t.TempDir(), nil, nil)
	manager.SyncOnStartup()

	assert.FileExists(t, filepath.Join(indexDir, "copied_at.txt"), "newer local index is mirrored over the served one")
}
