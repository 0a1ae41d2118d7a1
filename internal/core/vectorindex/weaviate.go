package vectorindex

import (
	"context"
	"fmt"
	"log"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	wvmodels "github.com/weaviate/weaviate/entities/models"

	cfg "github.com/krypta-docs/krypta/internal/config"
	"github.com/krypta-docs/krypta/internal/core"
	"github.com/krypta-docs/krypta/internal/models"
)

// Store is the Weaviate-backed vector index. Vectors are supplied by the
// pipeline (vectorizer "none"); Weaviate only stores and counts them.
type Store struct {
	client *weaviate.Client
	class  string
}

var _ core.VectorIndex = (*Store)(nil)

func NewStore(ctx context.Context, cfg *cfg.Config) (*Store, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}
	s := &Store{client: client, class: cfg.WeaviateClass}
	if err := s.ensureClass(ctx); err != nil {
		return nil, err
	}
	log.Println("Connected to Weaviate successfully")
	return s, nil
}

func (s *Store) ensureClass(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.class).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate schema check: %w", err)
	}
	if exists {
		return nil
	}
	class := &wvmodels.Class{
		Class:      s.class,
		Vectorizer: "none",
		Properties: []*wvmodels.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "documentId", DataType: []string{"text"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "slideNum", DataType: []string{"int"}},
			{Name: "sheetName", DataType: []string{"text"}},
			{Name: "rowNum", DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("weaviate schema create: %w", err)
	}
	return nil
}

// Upsert writes one object per chunk in a single batch. Callers delete the
// document's prior objects first; Upsert itself never replaces.
func (s *Store) Upsert(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	objects := make([]*wvmodels.Object, 0, len(chunks))
	for i := range chunks {
		ch := &chunks[i]
		objects = append(objects, &wvmodels.Object{
			Class: s.class,
			Properties: map[string]interface{}{
				"content":    ch.Text,
				"documentId": documentID,
				"chunkIndex": ch.Position,
				"slideNum":   ch.SlideNum,
				"sheetName":  ch.SheetName,
				"rowNum":     ch.RowNum,
			},
			Vector: ch.Embedding,
		})
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}
	for _, obj := range res {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch object rejected: %s", obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.class).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}

// CountByDocument is the post-write verification read: how many vectors the
// index actually holds for a document.
func (s *Store) CountByDocument(ctx context.Context, documentID string) (int, error) {
	meta := graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}
	where := filters.Where().
		WithPath([]string{"documentId"}).
		WithOperator(filters.Equal).
		WithValueString(documentID)

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithWhere(where).
		WithFields(meta).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate payload")
	}
	rows, ok := agg[s.class].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	props, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate row")
	}
	metaMap, ok := props["meta"].(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("aggregate row missing meta")
	}
	count, ok := metaMap["count"].(float64)
	if !ok {
		return 0, fmt.Errorf("aggregate meta missing count")
	}
	return int(count), nil
}
