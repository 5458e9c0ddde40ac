/*
Copyright © 2025 daureny
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/daureny/rag-chatbot-be/config"
	"github.com/daureny/rag-chatbot-be/service"
)

// buildIndexCmd represents the buildIndex command
var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Index a documents directory into the local index",
	Long: `Loads every supported document (PDF, DOCX, TXT, HTML) from the
documents directory, splits it into chunks, embeds the chunks and saves
the resulting index into the project-local index directory. With
--direct-copy the finished index is also mirrored into the persistent
storage directory served at runtime.`,
	Run: func(cmd *cobra.Command, args []string) {
		start := time.Now()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if cfg.OpenAIAPIKey == "" {
			log.Fatal("OPENAI_API_KEY is required to build the index")
		}

		docsDir, _ := cmd.Flags().GetString("docs-dir")
		if docsDir == "" {
			docsDir = cfg.DocsDir
		}
		maxDocs, _ := cmd.Flags().GetInt("max-docs")
		chunkSize, _ := cmd.Flags().GetInt("chunk-size")
		chunkOverlap, _ := cmd.Flags().GetInt("chunk-overlap")
		directCopy, _ := cmd.Flags().GetBool("direct-copy")

		embedder := service.NewOpenAIEmbedder(cfg.OpenAIAPIKey)
		splitter := service.NewTextSplitter(chunkSize, chunkOverlap)
		loader := service.NewDocumentLoader(cfg.MaxFileSizeBytes)
		builder := service.NewIndexBuilder(
			embedder,
			splitter,
			loader,
			cfg.BatchSize,
			time.Duration(cfg.BatchPauseSeconds)*time.Second,
			time.Duration(cfg.RateLimitBackoffSeconds)*time.Second,
		)

		log.Printf("Documents directory: %s", docsDir)
		log.Printf("Index directory: %s", cfg.LocalIndexDir)

		result, err := builder.Build(context.Background(), docsDir, maxDocs)
		if err != nil {
			log.Fatalf("Failed to build index: %v", err)
		}

		if err := service.SaveIndex(result, cfg.LocalIndexDir); err != nil {
			log.Fatalf("Failed to save index: %v", err)
		}

		if len(result.ErrorFiles) > 0 {
			fmt.Println("\nFiles with errors:")
			for _, fe := range result.ErrorFiles {
				fmt.Printf("- %s: %s\n", fe.Filename, fe.Error)
			}
		}

		if directCopy {
			if err := service.MirrorIndex(cfg.LocalIndexDir, cfg.IndexDir); err != nil {
				log.Printf("Failed to copy index to %s: %v", cfg.IndexDir, err)
				log.Println("The index is saved in the local directory only.")
			} else {
				log.Printf("Index also copied to %s", cfg.IndexDir)
			}
		}

		elapsed := time.Since(start).Round(time.Second)
		fmt.Printf("\nDone in %s: indexed %d documents into %d chunks\n",
			elapsed, result.DocumentCount, result.ChunkCount)
		fmt.Printf("Index saved to: %s\n", cfg.LocalIndexDir)
	},
}

func init() {
	rootCmd.AddCommand(buildIndexCmd)

	buildIndexCmd.Flags().String("docs-dir", "", "Directory with documents (defaults to docs_dir from config)")
	buildIndexCmd.Flags().Int("max-docs", 0, "Maximum number of documents to process (0 = all)")
	buildIndexCmd.Flags().Int("chunk-size", 4000, "Chunk size in characters")
	buildIndexCmd.Flags().Int("chunk-overlap", 500, "Chunk overlap in characters")
	buildIndexCmd.Flags().BoolP("direct-copy", "d", false, "Also copy the finished index into persistent storage")
}
