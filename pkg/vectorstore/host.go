package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/go-go-golems/parley/pkg/embeddings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrNoCollection = errors.New("no current collection loaded")

type Document struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type SearchResult struct {
	Document
	Distance float64 `json:"distance"`
}

// Collection is a stored set of embedded chunks of one document.
type Collection struct {
	// Name is the store-side class name.
	Name         string `json:"name"`
	ID           string `json:"id"`
	DocumentName string `json:"documentName"`
	Alias        string `json:"alias"`
}

// ClassInfo is what a Store reports for an existing collection.
type ClassInfo struct {
	Name        string
	Description string
}

// Store is the vector database behind a Host.
type Store interface {
	ListCollections(ctx context.Context) ([]ClassInfo, error)
	CreateCollection(ctx context.Context, name string, description string) error
	AddDocuments(ctx context.Context, name string, docs []Document, vectors [][]float32) error
	Search(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error)
	DeleteCollection(ctx context.Context, name string) error
}

// ClassName returns the store-side name for a collection id. Class names
// have to start with an uppercase letter.
func ClassName(id string) string {
	return "C" + id
}

// Host keeps the registry of collections created through it or found in the
// store on Connect.
type Host struct {
	store    Store
	embedder embeddings.Provider

	mu          sync.Mutex
	collections map[string]*Collection
}

func NewHost(store Store, embedder embeddings.Provider) *Host {
	return &Host{
		store:       store,
		embedder:    embedder,
		collections: map[string]*Collection{},
	}
}

// Connect rebuilds the registry from the collections whose description is a
// valid alias. Others are left alone.
func (h *Host) Connect(ctx context.Context) error {
	classes, err := h.store.ListCollections(ctx)
	if err != nil {
		return errors.Wrap(err, "could not list collections")
	}

	collections := map[string]*Collection{}
	for _, class := range classes {
		encoded, id, ok := ParseAlias(class.Description)
		if !ok {
			log.Debug().Str("class", class.Name).Msg("skipping class without alias")
			continue
		}
		docName, err := DecodeDocName(encoded)
		if err != nil {
			log.Warn().Err(err).Str("class", class.Name).Msg("skipping class with undecodable alias")
			continue
		}
		collections[class.Name] = &Collection{
			Name:         class.Name,
			ID:           id,
			DocumentName: docName,
			Alias:        class.Description,
		}
	}

	h.mu.Lock()
	h.collections = collections
	h.mu.Unlock()

	log.Debug().Int("collections", len(collections)).Msg("connected to vector store")
	return nil
}

// StoreEmbedding embeds the documents into a fresh collection for docName.
func (h *Host) StoreEmbedding(ctx context.Context, docName string, docs []Document) (*Collection, error) {
	if len(docs) == 0 {
		return nil, errors.Errorf("no documents to store for %s", docName)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := h.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return nil, errors.Wrapf(err, "could not embed %s", docName)
	}
	if len(vectors) != len(docs) {
		return nil, errors.Errorf("expected %d vectors, got %d", len(docs), len(vectors))
	}

	id := NewCollectionID()
	c := &Collection{
		Name:         ClassName(id),
		ID:           id,
		DocumentName: docName,
		Alias:        MakeAlias(docName, id),
	}

	if err := h.store.CreateCollection(ctx, c.Name, c.Alias); err != nil {
		return nil, errors.Wrapf(err, "could not create collection for %s", docName)
	}
	if err := h.store.AddDocuments(ctx, c.Name, docs, vectors); err != nil {
		if delErr := h.store.DeleteCollection(ctx, c.Name); delErr != nil {
			log.Warn().Err(delErr).Str("collection", c.Name).Msg("could not remove partial collection")
		}
		return nil, errors.Wrapf(err, "could not store documents for %s", docName)
	}

	h.mu.Lock()
	h.collections[c.Name] = c
	h.mu.Unlock()

	log.Debug().
		Str("collection", c.Name).
		Str("document", docName).
		Int("chunks", len(docs)).
		Msg("stored embeddings")
	return c, nil
}

func (h *Host) lookup(name string) (*Collection, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.collections[name]
	return c, ok
}

func (h *Host) SimilaritySearch(ctx context.Context, collectionName string, query string, k int) ([]SearchResult, error) {
	c, ok := h.lookup(collectionName)
	if !ok {
		return nil, errors.Wrap(ErrNoCollection, collectionName)
	}
	if k <= 0 {
		k = 4
	}

	vector, err := h.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "could not embed query")
	}
	return h.store.Search(ctx, c.Name, vector, k)
}

// DropCollection removes a collection. Unknown names are ignored.
func (h *Host) DropCollection(ctx context.Context, collectionName string) error {
	if _, ok := h.lookup(collectionName); !ok {
		return nil
	}
	if err := h.store.DeleteCollection(ctx, collectionName); err != nil {
		return errors.Wrapf(err, "could not drop %s", collectionName)
	}

	h.mu.Lock()
	delete(h.collections, collectionName)
	h.mu.Unlock()
	return nil
}

// Collections returns the registry sorted by document name.
func (h *Host) Collections() []Collection {
	h.mu.Lock()
	defer h.mu.Unlock()

	ret := make([]Collection, 0, len(h.collections))
	for _, c := range h.collections {
		ret = append(ret, *c)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].DocumentName == ret[j].DocumentName {
			return ret[i].Name < ret[j].Name
		}
		return ret[i].DocumentName < ret[j].DocumentName
	})
	return ret
}
