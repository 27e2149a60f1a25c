package nd

import (
	"fmt"
	"strings"

	"nd-go/internal/model"
)

// protectedDirs are directories no deployment may write into. These are
// hard security boundaries, not heuristics: dependency trees and
// version-control internals must never be mutated through this core.
var protectedDirs = []string{".git", "node_modules", "vendor"}

// validateRequest rejects a bad change set before any I/O happens.
func validateRequest(req *model.DeploymentRequest) error {
	if req.NucleusID == "" {
		return fmt.Errorf("deployment request missing nucleus id")
	}
	if req.Repository == "" {
		return fmt.Errorf("deployment request missing repository")
	}
	switch req.Strategy {
	case model.StrategyDryRun, model.StrategyCreatePR, model.StrategyAutoApply, model.StrategyScheduled:
	default:
		return fmt.Errorf("unknown deployment strategy: %q", req.Strategy)
	}
	if len(req.Changes) == 0 {
		return fmt.Errorf("change list is empty")
	}
	for i, c := range req.Changes {
		if c.File == "" {
			return fmt.Errorf("change %d is missing a file path", i)
		}
		switch c.Action {
		case model.ActionCreate, model.ActionUpdate:
			if c.Content == "" {
				return fmt.Errorf("change %d (%s %s) has no content", i, c.Action, c.File)
			}
		case model.ActionDelete:
		default:
			return fmt.Errorf("change %d (%s) has unknown action %q", i, c.File, c.Action)
		}
		if err := validatePath(c.File); err != nil {
			return fmt.Errorf("change %d: %w", i, err)
		}
	}
	return nil
}

// validatePath rejects parent-directory traversal and writes into
// protected directories.
func validatePath(path string) error {
	normalized := strings.ReplaceAll(path, "\\", "/")
	segments := strings.Split(normalized, "/")
	for _, seg := range segments {
		if seg == ".." {
			return fmt.Errorf("path %q contains a parent-directory traversal segment", path)
		}
	}
	for _, seg := range segments[:len(segments)-1] {
		for _, protected := range protectedDirs {
			if seg == protected {
				return fmt.Errorf("path %q touches protected directory %q", path, protected)
			}
		}
	}
	return nil
}
