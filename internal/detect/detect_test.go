package detect

import (
	"testing"

	"github.com/berth-dev/triage/internal/testutil"
)

func TestDetectStack(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]string
		wantLang   string
		wantRunner string
	}{
		{"vitest project", testutil.VitestProject(), "javascript", RunnerVitest},
		{"jest project", testutil.JestProject(), "javascript", RunnerJest},
		{"no test script", testutil.NodeProjectWithoutTests(), "javascript", ""},
		{"go project", testutil.GoProject(), "", ""},
		{"empty", testutil.EmptyProject(), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.TempProject(t, tt.files)
			info := DetectStack(dir)
			if info.Language != tt.wantLang {
				t.Errorf("Language = %q, want %q", info.Language, tt.wantLang)
			}
			if info.Runner != tt.wantRunner {
				t.Errorf("Runner = %q, want %q", info.Runner, tt.wantRunner)
			}
		})
	}
}

func TestDetectStack_TypeScriptAndPackageManager(t *testing.T) {
	files := testutil.VitestProject()
	files["tsconfig.json"] = `{}`
	files["pnpm-lock.yaml"] = "lockfileVersion: 9.0"
	dir := testutil.TempProject(t, files)

	info := DetectStack(dir)
	if info.Language != "typescript" {
		t.Errorf("Language = %q, want typescript", info.Language)
	}
	if info.PackageManager != "pnpm" {
		t.Errorf("PackageManager = %q, want pnpm", info.PackageManager)
	}
}

func TestTestCommand(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"vitest script", testutil.VitestProject(), "vitest run --reporter=json --outputFile=out.json"},
		{"jest script", testutil.JestProject(), "jest --ci --json --outputFile=out.json"},
		{"no test script", testutil.NodeProjectWithoutTests(), "npx vitest run --reporter=json --outputFile=out.json"},
		{"no package.json", testutil.EmptyProject(), "npx vitest run --reporter=json --outputFile=out.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.TempProject(t, tt.files)
			if got := TestCommand(dir, "out.json"); got != tt.want {
				t.Errorf("TestCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}
