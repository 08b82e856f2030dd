package pinecone

import (
	"context"
	"fmt"
	"os"
	"strings"

	pc "github.com/davenfroberg/gpta-backend/internal/clients/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

// VectorStore is the retrieval index over chunk text. The index embeds
// record text server-side, so both writes and queries are plain text.
type VectorStore interface {
	UpsertChunks(ctx context.Context, chunks []*domain.Chunk) error
	Search(ctx context.Context, query, courseID string, topK int) ([]Match, error)
}

// Match is one search hit with the chunk metadata the context assembler and
// notification engine need.
type Match struct {
	ChunkID     string
	Score       float64
	CourseID    string
	ParentID    string
	BlobID      string
	RootID      string
	RootPostNum int
	Type        string
	Title       string
	Date        string
}

type vectorStore struct {
	log       *logger.Logger
	pc        pc.Client
	indexName string
	indexHost string
	namespace string
}

func NewVectorStore(log *logger.Logger, client pc.Client) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("pinecone client required")
	}

	indexName := strings.TrimSpace(os.Getenv("PINECONE_INDEX_NAME"))
	if indexName == "" {
		indexName = "piazza-chunks"
	}
	namespace := strings.TrimSpace(os.Getenv("PINECONE_NAMESPACE"))
	if namespace == "" {
		namespace = "piazza"
	}

	host := strings.TrimSpace(os.Getenv("PINECONE_INDEX_HOST"))
	if host == "" {
		desc, err := client.DescribeIndex(context.Background(), indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = strings.TrimSpace(desc.Host)
		if host == "" {
			return nil, fmt.Errorf("pinecone describe_index returned empty host")
		}
		log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index (avoid this in production)",
			"index_name", indexName,
			"index_host", host,
		)
	}

	return &vectorStore{
		log:       log.With("service", "PineconeVectorStore"),
		pc:        client,
		indexName: indexName,
		indexHost: host,
		namespace: namespace,
	}, nil
}

func (s *vectorStore) UpsertChunks(ctx context.Context, chunks []*domain.Chunk) error {
	if s == nil || s.pc == nil {
		return fmt.Errorf("vector store unavailable")
	}
	if len(chunks) == 0 {
		return nil
	}
	records := make([]pc.Record, 0, len(chunks))
	for _, ch := range chunks {
		records = append(records, pc.Record{
			ID: ch.ID,
			Fields: map[string]any{
				"chunk_text":    ch.ChunkText,
				"class_id":      ch.CourseID,
				"blob_id":       ch.BlobID,
				"chunk_index":   ch.ChunkIndex,
				"root_id":       ch.RootID,
				"root_post_num": ch.RootPostNum,
				"parent_id":     ch.ParentID,
				"type":          ch.Type,
				"title":         ch.Title,
				"date":          ch.Date,
				"content_hash":  ch.ContentHash,
			},
		})
	}
	return s.pc.UpsertRecords(ctx, s.indexHost, s.namespace, records)
}

func (s *vectorStore) Search(ctx context.Context, query, courseID string, topK int) ([]Match, error) {
	if s == nil || s.pc == nil {
		return nil, fmt.Errorf("vector store unavailable")
	}
	resp, err := s.pc.Search(ctx, s.indexHost, s.namespace, pc.SearchRequest{
		TopK:   topK,
		Filter: map[string]any{"class_id": courseID},
		Text:   query,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(resp.Result.Hits))
	for _, h := range resp.Result.Hits {
		if strings.TrimSpace(h.ID) == "" {
			continue
		}
		out = append(out, Match{
			ChunkID:     h.ID,
			Score:       h.Score,
			CourseID:    fieldString(h.Fields, "class_id"),
			ParentID:    fieldString(h.Fields, "parent_id"),
			BlobID:      fieldString(h.Fields, "blob_id"),
			RootID:      fieldString(h.Fields, "root_id"),
			RootPostNum: fieldInt(h.Fields, "root_post_num"),
			Type:        fieldString(h.Fields, "type"),
			Title:       fieldString(h.Fields, "title"),
			Date:        fieldString(h.Fields, "date"),
		})
	}
	return out, nil
}

func fieldString(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func fieldInt(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
