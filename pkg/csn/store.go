// Package csn reads Core Schema Notation documents and turns them into typed
// entity, column and association records.
package csn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/csn-graph/pkg/apperrors"
)

// DefaultCacheSize is the number of decoded documents kept in memory.
const DefaultCacheSize = 32

// Definitions maps fully-qualified definition names to their raw JSON, in document order.
type Definitions = orderedmap.OrderedMap[string, json.RawMessage]

// Document is one decoded CSN file.
type Document struct {
	Path        string
	Definitions *Definitions
}

type documentBody struct {
	Definitions *Definitions `json:"definitions"`
}

// FileStore is a read-only view over a directory of CSN JSON files.
// Decoded documents are LRU cached.
type FileStore struct {
	dir    string
	cache  *lru.Cache[string, *Document]
	logger *zap.Logger
}

// NewFileStore creates a FileStore rooted at dir. A non-positive cacheSize uses DefaultCacheSize.
func NewFileStore(dir string, cacheSize int, logger *zap.Logger) (*FileStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[string, *Document](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create document cache: %w", err)
	}

	return &FileStore{
		dir:    dir,
		cache:  cache,
		logger: logger.Named("csn-store"),
	}, nil
}

// Dir returns the directory the store reads from.
func (s *FileStore) Dir() string {
	return s.dir
}

// Files lists the *.json files under the store directory, sorted by path.
// A missing directory yields no files.
func (s *FileStore) Files() ([]string, error) {
	var files []string

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list CSN files in %s: %w", s.dir, err)
	}

	if len(files) == 0 {
		s.logger.Debug("No CSN files found", zap.String("dir", s.dir))
	}

	sort.Strings(files)
	return files, nil
}

// Load returns the decoded document at path, reading it from disk on a cache miss.
// Malformed JSON returns an error wrapping apperrors.ErrParse.
func (s *FileStore) Load(path string) (*Document, error) {
	if doc, ok := s.cache.Get(path); ok {
		return doc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSN file %s: %w", path, err)
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path

	s.cache.Add(path, doc)
	return doc, nil
}

// ClearCache drops every cached document.
func (s *FileStore) ClearCache() {
	s.cache.Purge()
}

// Decode parses a CSN document. Both {"definitions": {...}} and a one-element
// list wrapping that object are accepted.
func Decode(data []byte) (*Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document: %w", apperrors.ErrParse)
	}

	if data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("invalid JSON: %v: %w", err, apperrors.ErrParse)
		}
		if len(list) == 0 {
			return &Document{Definitions: orderedmap.New[string, json.RawMessage]()}, nil
		}
		data = list[0]
	}

	var body documentBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v: %w", err, apperrors.ErrParse)
	}
	if body.Definitions == nil {
		body.Definitions = orderedmap.New[string, json.RawMessage]()
	}

	return &Document{Definitions: body.Definitions}, nil
}
