package decision

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
)

// ValidationError reports structural problems that make a tree impossible to evaluate:
// missing or multiple roots, cycles, dangling references and unknown node kinds.
type ValidationError struct {
	Findings []models.ValidationFinding
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Findings) == 0 {
		return "invalid decision tree"
	}
	msgs := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Code, f.Message))
	}
	return "invalid decision tree: " + strings.Join(msgs, "; ")
}

// SizeLimit names the bound a tree exceeded.
type SizeLimit string

const (
	SizeLimitNodes SizeLimit = "nodes"
	SizeLimitDepth SizeLimit = "depth"
	SizeLimitPaths SizeLimit = "paths"
)

// TreeTooLargeError is returned before enumeration when a tree exceeds a configured bound.
type TreeTooLargeError struct {
	Limit  SizeLimit `json:"limit"`
	Max    int       `json:"max"`
	Actual int       `json:"actual"`
}

// Error implements the error interface.
func (e *TreeTooLargeError) Error() string {
	return fmt.Sprintf("decision tree too large: %d %s exceeds limit of %d", e.Actual, e.Limit, e.Max)
}
