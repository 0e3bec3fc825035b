// Package treefile reads decision trees written as nested YAML documents.
//
//	title: Relocate office
//	root:
//	  label: Where
//	  kind: Decision
//	  options:
//	    - {text: Busan, score: 80, cost: 5000}
//	    - {text: Stay, score: 40}
//	  children:
//	    - label: Market
//	      kind: Chance
//	      options: [...]
//
// Node and option ids are derived from their position in the document, so the
// same file always produces the same ids.
package treefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
)

// idNamespace seeds every derived id.
var idNamespace = uuid.MustParse("7b4e2f0a-3c1d-5e8f-9a6b-2d4c8e1f0a3b")

// File is the document root.
type File struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	CreatedBy   string `yaml:"created_by"`
	Root        *Node  `yaml:"root"`
}

// Node is one decision, chance or outcome node with its subtree.
type Node struct {
	Label    string   `yaml:"label"`
	Kind     string   `yaml:"kind"`
	Weight   *int     `yaml:"weight"`
	Options  []Option `yaml:"options"`
	Children []Node   `yaml:"children"`
}

// Option is one option of a node. Omitted values take the engine defaults.
type Option struct {
	Text        string   `yaml:"text"`
	Score       *float64 `yaml:"score"`
	Probability *float64 `yaml:"probability"`
	Cost        *float64 `yaml:"cost"`
}

// Parse decodes a YAML tree and flattens it into a snapshot. Structural problems
// such as unknown kinds are left for the engine's validator to report.
func Parse(r io.Reader) (*models.DecisionTreeSnapshot, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("tree file is empty")
		}
		return nil, fmt.Errorf("decode tree file: %w", err)
	}
	return f.Snapshot()
}

// ParseFile reads and parses the tree file at path.
func ParseFile(path string) (*models.DecisionTreeSnapshot, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	snap, err := Parse(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// Snapshot flattens the document into tree, node and option records.
func (f *File) Snapshot() (*models.DecisionTreeSnapshot, error) {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		return nil, errors.New("title is required")
	}
	if f.Root == nil {
		return nil, errors.New("root is required")
	}

	tree := &models.DecisionTree{
		ID:          uuid.NewSHA1(idNamespace, []byte("tree:"+title)),
		Title:       title,
		Description: f.Description,
		CreatedBy:   f.CreatedBy,
	}
	snap := &models.DecisionTreeSnapshot{Tree: tree}

	if err := flatten(snap, f.Root, nil, "root"); err != nil {
		return nil, err
	}
	return snap, nil
}

// flatten appends n and its subtree in pre-order. path is the node's position,
// "root", "root/0", "root/0/2" and so on.
func flatten(snap *models.DecisionTreeSnapshot, n *Node, parentID *uuid.UUID, path string) error {
	if strings.TrimSpace(n.Label) == "" {
		return fmt.Errorf("node at %s: label is required", path)
	}

	nodeID := uuid.NewSHA1(snap.Tree.ID, []byte("node:"+path))
	snap.Nodes = append(snap.Nodes, models.DecisionNode{
		ID:       nodeID,
		TreeID:   snap.Tree.ID,
		ParentID: parentID,
		Kind:     models.NodeKind(n.Kind),
		Label:    strings.TrimSpace(n.Label),
		Weight:   n.Weight,
	})

	for i, o := range n.Options {
		if strings.TrimSpace(o.Text) == "" {
			return fmt.Errorf("node %q option %d: text is required", n.Label, i)
		}
		snap.Options = append(snap.Options, models.DecisionOption{
			ID:          uuid.NewSHA1(snap.Tree.ID, []byte("option:"+path+"#"+strconv.Itoa(i))),
			NodeID:      nodeID,
			Text:        strings.TrimSpace(o.Text),
			Score:       o.Score,
			Probability: o.Probability,
			Cost:        o.Cost,
		})
	}

	for i := range n.Children {
		if err := flatten(snap, &n.Children[i], &nodeID, path+"/"+strconv.Itoa(i)); err != nil {
			return err
		}
	}
	return nil
}
