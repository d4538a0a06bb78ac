package gates

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/codemend/codemend/internal/types"
)

// ImportsGate checks that a Go artifact's imports resolve against the
// enclosing module's go.mod. Advisory: import resolution is only meaningful
// when the module context is available (it often is not for a standalone
// file handed to the CLI), so a failure here is diagnostic, never fatal.
type ImportsGate struct {
	// ModFilePath points at the go.mod to resolve against. When empty the
	// gate walks up from the artifact path looking for one.
	ModFilePath string
}

// NewImportsGate creates the advisory import-resolution gate
func NewImportsGate(modFilePath string) *ImportsGate {
	return &ImportsGate{ModFilePath: modFilePath}
}

func (g *ImportsGate) Name() string { return "imports" }
func (g *ImportsGate) Tier() Tier   { return TierAdvisory }

func (g *ImportsGate) Check(ctx context.Context, artifact *types.Artifact) (bool, string, error) {
	if artifact.Language != "go" {
		return true, "not a go artifact, skipped", nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, artifact.Path, artifact.Content, parser.ImportsOnly)
	if err != nil {
		return false, fmt.Sprintf("cannot parse imports: %v", err), nil
	}

	modPath := g.ModFilePath
	if modPath == "" {
		modPath = findGoMod(artifact.Path)
	}
	if modPath == "" {
		return true, "no go.mod found, resolution skipped", nil
	}

	data, err := os.ReadFile(modPath)
	if err != nil {
		return false, fmt.Sprintf("cannot read %s: %v", modPath, err), nil
	}
	mod, err := modfile.Parse(modPath, data, nil)
	if err != nil {
		return false, fmt.Sprintf("cannot parse %s: %v", modPath, err), nil
	}

	var unresolved []string
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if !resolvable(path, mod) {
			unresolved = append(unresolved, path)
		}
	}

	if len(unresolved) > 0 {
		return false, fmt.Sprintf("unresolved imports: %s", strings.Join(unresolved, ", ")), nil
	}
	return true, fmt.Sprintf("%d import(s) resolve", len(file.Imports)), nil
}

// resolvable reports whether an import path is stdlib, in-module, or covered
// by a require directive.
func resolvable(path string, mod *modfile.File) bool {
	// Stdlib packages have no dot in the first path element
	first := path
	if idx := strings.Index(path, "/"); idx >= 0 {
		first = path[:idx]
	}
	if !strings.Contains(first, ".") {
		return true
	}

	if mod.Module != nil && withinModule(path, mod.Module.Mod.Path) {
		return true
	}
	for _, req := range mod.Require {
		if withinModule(path, req.Mod.Path) {
			return true
		}
	}
	return false
}

func withinModule(importPath, modulePath string) bool {
	return importPath == modulePath || strings.HasPrefix(importPath, modulePath+"/")
}

// findGoMod walks up from the artifact's directory looking for a go.mod
func findGoMod(artifactPath string) string {
	dir := filepath.Dir(artifactPath)
	for {
		candidate := filepath.Join(dir, "go.mod")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
