// Package detect inspects a project to find how its tests run.
// This file provides DetectStack and TestCommand for JavaScript projects.
package detect

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Test runners with a JSON reporter the collector understands.
const (
	RunnerVitest = "vitest"
	RunnerJest   = "jest"
)

// StackInfo holds the detected project stack information.
type StackInfo struct {
	Language       string // "typescript", "javascript", or "" when no package.json
	PackageManager string // "pnpm", "npm", "yarn", "bun"
	Runner         string // RunnerVitest, RunnerJest, or ""
	TestScript     string // scripts.test from package.json
}

// packageJSON is the minimal structure we parse from package.json.
type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

// DetectStack scans dir for package.json and returns detected stack info.
// Returns a zero StackInfo if dir is not a JavaScript project.
func DetectStack(dir string) StackInfo {
	pkgPath := filepath.Join(dir, "package.json")
	if !fileExists(pkgPath) {
		return StackInfo{}
	}

	var pkg packageJSON
	if data := readFile(pkgPath); data != "" {
		_ = json.Unmarshal([]byte(data), &pkg)
	}

	lang := "javascript"
	if fileExists(filepath.Join(dir, "tsconfig.json")) {
		lang = "typescript"
	}

	script := strings.TrimSpace(pkg.Scripts["test"])
	return StackInfo{
		Language:       lang,
		PackageManager: detectPackageManager(dir),
		Runner:         detectRunner(pkg, script),
		TestScript:     script,
	}
}

// TestCommand returns the shell command that runs the project's tests and
// writes a JSON report to reportPath. A test script mentioning vitest or jest
// is reused with that runner's reporter flags; anything else falls back to
// npx vitest.
func TestCommand(dir, reportPath string) string {
	stack := DetectStack(dir)
	switch {
	case stack.TestScript != "" && strings.Contains(stack.TestScript, RunnerVitest):
		return stack.TestScript + " --reporter=json --outputFile=" + reportPath
	case stack.TestScript != "" && strings.Contains(stack.TestScript, RunnerJest):
		return stack.TestScript + " --json --outputFile=" + reportPath
	default:
		return "npx vitest run --reporter=json --outputFile=" + reportPath
	}
}

func detectRunner(pkg packageJSON, script string) string {
	switch {
	case strings.Contains(script, RunnerVitest):
		return RunnerVitest
	case strings.Contains(script, RunnerJest):
		return RunnerJest
	}
	for _, deps := range []map[string]string{pkg.DevDependencies, pkg.Dependencies} {
		if _, ok := deps[RunnerVitest]; ok {
			return RunnerVitest
		}
		if _, ok := deps[RunnerJest]; ok {
			return RunnerJest
		}
	}
	return ""
}

func detectPackageManager(dir string) string {
	switch {
	case fileExists(filepath.Join(dir, "pnpm-lock.yaml")):
		return "pnpm"
	case fileExists(filepath.Join(dir, "yarn.lock")):
		return "yarn"
	case fileExists(filepath.Join(dir, "bun.lockb")):
		return "bun"
	default:
		return "npm"
	}
}

// fileExists returns true if path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// readFile reads the file at path and returns its contents.
// Returns an empty string if the file cannot be read.
func readFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
