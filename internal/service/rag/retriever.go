package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

// MetaSourceLabel is the document metadata key carrying the source label
// shown in the rendered context.
const MetaSourceLabel = "document_name"

// Retriever returns ranked document chunks for a query against a named
// collection. Implementations must return an empty slice, not an error,
// when the collection simply holds no relevant content; errors are
// reserved for transport-level failures.
type Retriever interface {
	Retrieve(ctx context.Context, query, collection string) ([]*schema.Document, error)
}

// ChromaRetriever queries the ChromaDB sidecar's /documents/query endpoint.
// The sidecar owns the embedding step; this client only ships query text.
type ChromaRetriever struct {
	baseURL string
	topK    int
	client  *http.Client
}

// NewChromaRetriever builds a retriever against the sidecar at baseURL,
// returning up to topK chunks per query.
func NewChromaRetriever(baseURL string, topK int, timeout time.Duration) *ChromaRetriever {
	return &ChromaRetriever{
		baseURL: strings.TrimRight(baseURL, "/"),
		topK:    topK,
		client:  &http.Client{Timeout: timeout},
	}
}

type chromaQueryRequest struct {
	CollectionName string   `json:"collection_name"`
	QueryText      string   `json:"query_text"`
	NResults       int      `json:"n_results"`
	Include        []string `json:"include"`
}

type chromaQueryResponse struct {
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Retrieve fetches the top-ranked chunks for the query. Chunk order follows
// the sidecar's ranking; scores carry the reported distances.
func (r *ChromaRetriever) Retrieve(ctx context.Context, query, collection string) ([]*schema.Document, error) {
	payload, err := json.Marshal(chromaQueryRequest{
		CollectionName: collection,
		QueryText:      query,
		NResults:       r.topK,
		Include:        []string{"documents", "metadatas", "distances"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal retrieval request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/documents/query", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query retrieval service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("retrieval service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded chromaQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode retrieval response: %w", err)
	}

	return documentsFromResponse(decoded), nil
}

// documentsFromResponse flattens the sidecar's one-query response shape
// into ranked documents. Missing metadata degrades to an unknown source.
func documentsFromResponse(decoded chromaQueryResponse) []*schema.Document {
	if len(decoded.Documents) == 0 {
		return nil
	}

	texts := decoded.Documents[0]
	var metas []map[string]any
	if len(decoded.Metadatas) > 0 {
		metas = decoded.Metadatas[0]
	}
	var distances []float64
	if len(decoded.Distances) > 0 {
		distances = decoded.Distances[0]
	}

	docs := make([]*schema.Document, 0, len(texts))
	for i, text := range texts {
		doc := &schema.Document{
			Content:  text,
			MetaData: map[string]any{},
		}
		if i < len(metas) && metas[i] != nil {
			if name, ok := metas[i][MetaSourceLabel].(string); ok {
				doc.MetaData[MetaSourceLabel] = name
			}
		}
		if i < len(distances) {
			doc.WithScore(distances[i])
		}
		docs = append(docs, doc)
	}
	return docs
}

// BuildContext renders retrieved chunks as a single context block:
// "[{source} | Score: {score}] {text}" entries joined by blank lines, in
// retrieval order. An empty chunk list yields the empty string, which
// callers must treat as "no relevant context found".
func BuildContext(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		name, _ := doc.MetaData[MetaSourceLabel].(string)
		if name == "" {
			name = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("[%s | Score: %.4f] %s", name, doc.Score(), doc.Content))
	}
	return strings.Join(parts, "\n\n")
}
