package main

import (
	"context"
	"fmt"

	"github.com/sankar-v/lms/chunk"
	"github.com/sankar-v/lms/embedder"
	"github.com/sankar-v/lms/ingest"
	"github.com/sankar-v/lms/loader"
	"github.com/sankar-v/lms/pkg/config"
	"github.com/sankar-v/lms/retriever"
	"github.com/sankar-v/lms/vectordb"
)

// app wires the pipeline components from the loaded configuration. One app
// is built per command invocation and closed when it finishes.
type app struct {
	cfg       *config.Config
	store     vectordb.Store
	embedder  *embedder.Client
	pipeline  *ingest.Pipeline
	retriever *retriever.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	client, err := embedder.New(&embedder.Config{
		Provider:      embedder.Provider(cfg.Embedder.Provider),
		Model:         cfg.Embedder.Model,
		APIKey:        cfg.Embedder.APIKey,
		Dimension:     cfg.Embedder.Dimension,
		BatchSize:     cfg.Embedder.BatchSize,
		MaxRetries:    cfg.Embedder.MaxRetries,
		BaseBackoff:   cfg.Embedder.BaseBackoff,
		MaxBackoff:    cfg.Embedder.MaxBackoff,
		CacheSize:     cfg.Embedder.CacheSize,
		StripNewLines: true,
	})
	if err != nil {
		return nil, err
	}
	store, err := vectordb.New(ctx, &vectordb.Config{
		Provider:    vectordb.ProviderPGVector,
		DSN:         cfg.VectorDB.DSN,
		Table:       cfg.VectorDB.Table,
		Index:       cfg.VectorDB.Index,
		Dimension:   cfg.VectorDB.Dimension,
		EnsureIndex: cfg.VectorDB.EnsureIndex,
		Lists:       cfg.VectorDB.Lists,
		Probes:      cfg.VectorDB.Probes,
		MaxConns:    cfg.VectorDB.MaxConns,
		MinConns:    cfg.VectorDB.MinConns,
	})
	if err != nil {
		return nil, err
	}
	splitter, err := chunk.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	pipeline, err := ingest.New(loader.New(), splitter, client, store, ingest.Config{
		Concurrency: cfg.Ingest.Concurrency,
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	service, err := retriever.NewService(client, store, retriever.Config{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return &app{
		cfg:       cfg,
		store:     store,
		embedder:  client,
		pipeline:  pipeline,
		retriever: service,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.store.Close(ctx); err != nil {
		fmt.Println("warning: failed to close store:", err)
	}
}
