// Package rag stores anchor embeddings so the continuity analyzer can find
// planted elements semantically related to an upcoming scene, not just the
// handful still listed on the state card.
package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"fablecast/server/internal/config"
	"fablecast/server/internal/genai"
	"fablecast/server/internal/models"
)

const defaultVectorSize = 1536

// AnchorStore pairs an embedding client with a Qdrant collection.
type AnchorStore struct {
	client     *qdrant.Client
	embedder   genai.Embedder
	collection string
	vectorSize uint64
}

func NewAnchorStore(cfg config.QdrantConfig, embedder genai.Embedder) (*AnchorStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "anchors"
	}
	vectorSize := uint64(cfg.VectorSize)
	if vectorSize == 0 {
		vectorSize = defaultVectorSize
	}

	return &AnchorStore{
		client:     client,
		embedder:   embedder,
		collection: collection,
		vectorSize: vectorSize,
	}, nil
}

// EnsureCollection creates the anchor collection if it does not exist.
func (s *AnchorStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// StoreAnchor embeds and upserts one anchor for the episode.
func (s *AnchorStore) StoreAnchor(ctx context.Context, episodeID string, anchor models.Anchor) error {
	vector, err := s.embedder.Embed(ctx, anchor.Description)
	if err != nil {
		return fmt.Errorf("failed to embed anchor: %w", err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(anchor.ID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"episode_id":  episodeID,
				"description": anchor.Description,
				"scene":       int64(anchor.CreatedAtScene),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert anchor: %w", err)
	}
	return nil
}

// SearchRelated returns descriptions of the episode's stored anchors closest
// to the query, best first. Implements agents.AnchorRetriever.
func (s *AnchorStore) SearchRelated(ctx context.Context, episodeID, query string, limit int) ([]string, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("episode_id", episodeID),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("anchor search failed: %w", err)
	}

	var out []string
	for _, pt := range points {
		if desc, ok := pt.Payload["description"]; ok {
			out = append(out, desc.GetStringValue())
		}
	}
	return out, nil
}
