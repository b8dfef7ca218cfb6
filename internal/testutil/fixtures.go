// Package testutil provides test helper utilities for triage tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

func packageJSON(scripts map[string]string, devDeps map[string]string) string {
	pkg := map[string]interface{}{
		"name":    "test-project",
		"version": "1.0.0",
	}
	if scripts != nil {
		pkg["scripts"] = scripts
	}
	if devDeps != nil {
		pkg["devDependencies"] = devDeps
	}
	data, _ := json.MarshalIndent(pkg, "", "  ")
	return string(data)
}

// VitestProject returns file contents for a TypeScript project tested with vitest.
func VitestProject() map[string]string {
	return map[string]string{
		"package.json": packageJSON(
			map[string]string{"test": "vitest run", "build": "tsc"},
			map[string]string{"vitest": "^1.6.0", "typescript": "^5.0.0"},
		),
		"src/a.ts":      "export const a = () => 1;\n",
		"src/b.ts":      "import { a } from './a';\nexport const b = () => a() + 1;\n",
		"src/a.test.ts": "import { a } from './a';\n",
	}
}

// JestProject returns file contents for a project tested with jest.
func JestProject() map[string]string {
	return map[string]string{
		"package.json": packageJSON(
			map[string]string{"test": "jest --ci"},
			map[string]string{"jest": "^29.0.0"},
		),
		"src/index.js": "module.exports = () => 1;\n",
	}
}

// NodeProjectWithoutTests returns a package.json with no test script.
func NodeProjectWithoutTests() map[string]string {
	return map[string]string{
		"package.json": packageJSON(map[string]string{"build": "tsc"}, nil),
	}
}

// GoProject returns file contents for a minimal Go project.
func GoProject() map[string]string {
	return map[string]string{
		"go.mod":  "module example.com/test\n\ngo 1.23\n",
		"main.go": "package main\n\nfunc main() {}\n",
	}
}

// EmptyProject returns an empty directory with no files.
func EmptyProject() map[string]string {
	return map[string]string{}
}

// VitestReport is a minimal vitest JSON report with one failing and one passing test.
// The failing test's file is an absolute path under root.
func VitestReport(root string) string {
	report := map[string]interface{}{
		"numFailedTests": 1,
		"testResults": []map[string]interface{}{
			{
				"name":   filepath.Join(root, "src", "a.test.ts"),
				"status": "failed",
				"assertionResults": []map[string]interface{}{
					{
						"title":           "adds one",
						"status":          "failed",
						"failureMessages": []string{"AssertionError: expected 2 to be 3"},
					},
					{
						"title":           "returns a number",
						"status":          "passed",
						"failureMessages": []string{},
					},
				},
			},
		},
	}
	data, _ := json.MarshalIndent(report, "", "  ")
	return string(data)
}
