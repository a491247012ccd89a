package classify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	shelf "github.com/magicshelf/shelf"
	"github.com/magicshelf/shelf/node"
)

// storeSnapshot is the JSON layout of a persisted store.
type storeSnapshot struct {
	TreeSchema      []string            `json:"tree_schema"`
	TagList         []string            `json:"tag_list"`
	TreeSummary     map[string]string   `json:"tree_summary"`
	TreePathSummary map[string]string   `json:"tree_path_summary"`
	Tree            map[string][]string `json:"tree"`
	Tags            map[string][]string `json:"tags"`
	Types           []string            `json:"types"`
	TypesPrompt     map[string]string   `json:"types_prompt"`
	Nodes           *node.Collection    `json:"nodes"`
}

// Persist writes the store to its persist path. A store created without a
// path persists nowhere.
func (s *Store) Persist() error {
	if s.persistPath == "" {
		return nil
	}
	return s.PersistTo(s.persistPath)
}

// PersistTo writes the store to path as JSON.
func (s *Store) PersistTo(path string) error {
	s.mu.RLock()
	snap := storeSnapshot{
		TreeSchema:      s.treeSchema,
		TagList:         s.tagsList,
		TreeSummary:     s.treeSummary,
		TreePathSummary: s.treePathSummary,
		Tree:            s.tree,
		Tags:            s.tags,
		Types:           s.types,
		TypesPrompt:     s.typesPrompt,
		Nodes:           s.nodes,
	}
	data, err := json.MarshalIndent(snap, "", "    ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persist store: %w", err)
	}
	return nil
}

// Load reads a store previously written by Persist. A missing snapshot is
// an explicit error so a pipeline resuming from the wrong stage fails
// loudly instead of starting from an empty index.
func Load(path string, logger *slog.Logger) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, shelf.NewNotFoundError("classify.Load",
				fmt.Errorf("%w: store snapshot %s", shelf.ErrStoreNotFound, path))
		}
		return nil, fmt.Errorf("read store: %w", err)
	}

	snap := storeSnapshot{Nodes: node.NewCollection()}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, shelf.NewParseError("classify.Load", err)
	}

	s := NewStore(path, logger)
	s.treeSchema = snap.TreeSchema
	s.tagsList = snap.TagList
	if snap.TreeSummary != nil {
		s.treeSummary = snap.TreeSummary
	}
	if snap.TreePathSummary != nil {
		s.treePathSummary = snap.TreePathSummary
	}
	if snap.Tree != nil {
		s.tree = snap.Tree
	}
	if snap.Tags != nil {
		s.tags = snap.Tags
	}
	s.types = snap.Types
	if snap.TypesPrompt != nil {
		s.typesPrompt = snap.TypesPrompt
	}
	s.nodes = snap.Nodes
	return s, nil
}
