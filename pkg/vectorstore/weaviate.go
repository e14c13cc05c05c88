package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	textProperty     = "text"
	metadataProperty = "metadata"
)

type WeaviateSettings struct {
	Host       string            `yaml:"host"`
	Scheme     string            `yaml:"scheme"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Timeout    time.Duration     `yaml:"timeout,omitempty"`
	HTTPClient *http.Client      `yaml:"-"`
}

// WeaviateStore stores every collection as a class with vectorizer "none"
// and a text and a metadata property. Vectors are supplied by the Host.
type WeaviateStore struct {
	client *weaviate.Client
}

var _ Store = &WeaviateStore{}

func NewWeaviateStore(s WeaviateSettings) (*WeaviateStore, error) {
	if s.Host == "" {
		s.Host = "localhost:8080"
	}
	if s.Scheme == "" {
		s.Scheme = "http"
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:             s.Host,
		Scheme:           s.Scheme,
		Headers:          s.Headers,
		ConnectionClient: s.HTTPClient,
		Timeout:          s.Timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not create weaviate client for %s", s.Host)
	}
	return &WeaviateStore{client: client}, nil
}

func (w *WeaviateStore) ListCollections(ctx context.Context) ([]ClassInfo, error) {
	dump, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]ClassInfo, 0, len(dump.Classes))
	for _, c := range dump.Classes {
		ret = append(ret, ClassInfo{Name: c.Class, Description: c.Description})
	}
	return ret, nil
}

func newClass(name string, description string) *models.Class {
	return &models.Class{
		Class:       name,
		Description: description,
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: textProperty, DataType: []string{"text"}},
			{Name: metadataProperty, DataType: []string{"text"}},
		},
	}
}

func (w *WeaviateStore) CreateCollection(ctx context.Context, name string, description string) error {
	return w.client.Schema().ClassCreator().WithClass(newClass(name, description)).Do(ctx)
}

func newObjects(name string, docs []Document, vectors [][]float32) ([]*models.Object, error) {
	objects := make([]*models.Object, 0, len(docs))
	for i, d := range docs {
		metadata := "{}"
		if len(d.Metadata) > 0 {
			b, err := json.Marshal(d.Metadata)
			if err != nil {
				return nil, errors.Wrapf(err, "could not serialize metadata of chunk %d", i)
			}
			metadata = string(b)
		}
		objects = append(objects, &models.Object{
			Class: name,
			Properties: map[string]interface{}{
				textProperty:     d.Content,
				metadataProperty: metadata,
			},
			Vector: models.C11yVector(vectors[i]),
		})
	}
	return objects, nil
}

func (w *WeaviateStore) AddDocuments(ctx context.Context, name string, docs []Document, vectors [][]float32) error {
	objects, err := newObjects(name, docs, vectors)
	if err != nil {
		return err
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}

	var messages []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			messages = append(messages, e.Message)
		}
	}
	if len(messages) > 0 {
		return errors.Errorf("batch import failed: %s", strings.Join(messages, "; "))
	}
	return nil
}

func (w *WeaviateStore) Search(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error) {
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	resp, err := w.client.GraphQL().Get().
		WithClassName(name).
		WithFields(
			graphql.Field{Name: textProperty},
			graphql.Field{Name: metadataProperty},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
		).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			messages = append(messages, e.Message)
		}
		return nil, errors.Errorf("search failed: %s", strings.Join(messages, "; "))
	}

	var get interface{}
	if resp.Data != nil {
		get = resp.Data["Get"]
	}
	return parseSearchResults(get, name)
}

// parseSearchResults reads {"<class>": [{"text": ..., "metadata": ..., "_additional": {"distance": ...}}]}.
func parseSearchResults(get interface{}, name string) ([]SearchResult, error) {
	byClass, ok := get.(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search response")
	}
	items, _ := byClass[name].([]interface{})

	ret := make([]SearchResult, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		r := SearchResult{}
		r.Content, _ = fields[textProperty].(string)
		if raw, ok := fields[metadataProperty].(string); ok && raw != "" && raw != "{}" {
			if err := json.Unmarshal([]byte(raw), &r.Metadata); err != nil {
				log.Warn().Err(err).Str("collection", name).Msg("could not parse chunk metadata")
			}
		}
		if additional, ok := fields["_additional"].(map[string]interface{}); ok {
			switch d := additional["distance"].(type) {
			case float64:
				r.Distance = d
			case json.Number:
				r.Distance, _ = d.Float64()
			}
		}
		ret = append(ret, r)
	}
	return ret, nil
}

func (w *WeaviateStore) DeleteCollection(ctx context.Context, name string) error {
	return w.client.Schema().ClassDeleter().WithClassName(name).Do(ctx)
}
