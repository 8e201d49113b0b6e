// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package validate

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestLayeringRules enforces architectural layering rules.
func TestLayeringRules(t *testing.T) {
	projectRoot := findProjectRoot(t)

	mod := "github.com/ManuGH/lessonguard/internal/"
	violations := []string{}

	// Rule 1: domain/* is the innermost layer; it may only use log and other domain packages.
	for _, outer := range []string{"player", "progress", "security", "playbackauth", "watermark", "issuer", "config", "dispatch", "media"} {
		violations = append(violations, checkForbiddenImport(
			t, projectRoot,
			"internal/domain",
			mod+outer,
			"Domain layer must not import engine or service packages",
		)...)
	}

	// Rule 2: the playback engine never depends on the companion service.
	for _, engine := range []string{"internal/player", "internal/progress", "internal/security", "internal/playbackauth", "internal/watermark", "internal/media"} {
		violations = append(violations, checkForbiddenImport(
			t, projectRoot,
			engine,
			mod+"issuer",
			"Engine packages must not import the issuer service",
		)...)
	}

	// Rule 3: components report upward; only the session composes them.
	for _, component := range []string{"internal/progress", "internal/security", "internal/playbackauth", "internal/watermark"} {
		violations = append(violations, checkForbiddenImport(
			t, projectRoot,
			component,
			mod+"player",
			"Components must not import the session that owns them",
		)...)
	}

	// Rule 4: platform/* MUST NOT import config/* or domain/* (platform is the lowest layer)
	violations = append(violations, checkForbiddenImport(
		t, projectRoot,
		"internal/platform",
		mod+"config",
		"Platform layer must not import config layer",
	)...)
	violations = append(violations, checkForbiddenImport(
		t, projectRoot,
		"internal/platform",
		mod+"domain",
		"Platform layer must not import domain layer",
	)...)

	if len(violations) > 0 {
		t.Errorf("Layering violations detected:\n\n%s", strings.Join(violations, "\n"))
	}
}

// TestNoUtilsPackages prevents creation of "utils hell" packages.
func TestNoUtilsPackages(t *testing.T) {
	projectRoot := findProjectRoot(t)

	forbiddenDirs := []string{
		"internal/utils",
		"internal/util",
		"internal/common",
		"internal/helpers",
		"internal/shared",
	}

	violations := []string{}
	for _, dir := range forbiddenDirs {
		if _, err := os.Stat(filepath.Join(projectRoot, dir)); err == nil {
			violations = append(violations, fmt.Sprintf("Forbidden package detected: %s", dir))
		}
	}

	if len(violations) > 0 {
		t.Errorf("Utils package violations:\n\n%s\n\nUse semantically named packages instead.",
			strings.Join(violations, "\n"))
	}
}

// --- Helper Functions ---

func checkForbiddenImport(t *testing.T, projectRoot, sourceDir, forbiddenImportPrefix, reason string) []string {
	return checkForbiddenImportExcept(t, projectRoot, sourceDir, forbiddenImportPrefix, nil, reason)
}

func checkForbiddenImportExcept(t *testing.T, projectRoot, sourceDir, forbiddenImportPrefix string, allowedImports []string, reason string) []string {
	t.Helper()

	sourcePath := filepath.Join(projectRoot, sourceDir)
	files, err := findGoFiles(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Directory doesn't exist - no violation
		}
		t.Fatalf("Failed to scan %s: %v", sourceDir, err)
	}

	// Build set of allowed imports for fast lookup
	allowedSet := make(map[string]bool)
	for _, allowed := range allowedImports {
		allowedSet[allowed] = true
	}

	violations := []string{}
	for _, file := range files {
		imports, err := extractImports(file)
		if err != nil {
			t.Logf("Warning: failed to parse %s: %v", file, err)
			continue
		}

		for _, imp := range imports {
			if strings.HasPrefix(imp, forbiddenImportPrefix) {
				// Check if this import is explicitly allowed
				if allowedSet[imp] {
					continue
				}
				relPath, _ := filepath.Rel(projectRoot, file)
				violations = append(violations, fmt.Sprintf(
					"  ❌ %s imports %s\n     Reason: %s",
					relPath, imp, reason,
				))
			}
		}
	}

	return violations
}

func findGoFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func extractImports(filePath string) ([]string, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filePath, nil, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}

	imports := []string{}
	for _, imp := range f.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		imports = append(imports, importPath)
	}
	return imports, nil
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	// Walk up until we find go.mod
	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("Could not find project root (no go.mod found)")
		}
		dir = parent
	}
}
