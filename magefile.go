//go:build mage

// Tiered quality checks with fo dashboard rendering.
//
// Tiers:
//
//	mage        Build, lint, test (default)
//	mage qa     Full quality: race detection, all linters, govulncheck
//	mage reports  Lint the sample reports with the freshly built binary
//
// Set CLI=1 for console output instead of dashboard.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	binary      = "bin/tracekit"
	sampleTrace = "pkg/trace/testdata"
)

// cli returns true if CLI=1 is set (console output instead of dashboard).
func cli() bool {
	return os.Getenv("CLI") != ""
}

// ldflags stamps the version from git, falling back to "dev".
func ldflags() string {
	out, err := exec.Command("git", "describe", "--tags", "--always", "--dirty").Output()
	version := strings.TrimSpace(string(out))
	if err != nil || version == "" {
		version = "dev"
	}
	return "-X github.com/dkoosis/tracekit/internal/cli.Version=" + version
}

// Default target runs standard build + lint + test.
var Default = All

// ----------------------------------------------------------------------------
// Tier 1: Standard (default)
// ----------------------------------------------------------------------------

// All runs build, lint, and test.
func All() error {
	if cli() {
		return allCLI()
	}
	return allDashboard()
}

func allDashboard() error {
	return runFoDashboard(
		"Build/compile:go build ./...",
		"Build/tracekit:go build -ldflags '"+ldflags()+"' -o "+binary+" ./cmd/tracekit",
		"Test/unit:go test -json -cover ./...",
		"Lint/vet:go vet ./...",
		"Lint/gofmt:gofmt -l .",
		linterTask("staticcheck"),
		linterTask("gosec"),
		"Lint/reports:go run ./cmd/tracekit lint "+sampleTrace,
	)
}

func allCLI() error {
	fmt.Println("═══ Build + Lint + Test ═══")
	return runSequential(
		step{"Build", "go", []string{"build", "-ldflags", ldflags(), "-o", binary, "./cmd/tracekit"}},
		step{"Test", "go", []string{"test", "-cover", "./..."}},
		step{"Vet", "go", []string{"vet", "./..."}},
		step{"Gofmt", "gofmt", []string{"-l", "."}},
		step{"Staticcheck", "golangci-lint", []string{"run", "--enable-only", "staticcheck", "./..."}},
		step{"Gosec", "golangci-lint", []string{"run", "--enable-only", "gosec", "./..."}},
	)
}

// ----------------------------------------------------------------------------
// Tier 2: Full QA
// ----------------------------------------------------------------------------

// Qa runs comprehensive quality checks: race detection, all linters, govulncheck.
func Qa() error {
	if cli() {
		return qaCLI()
	}
	return qaDashboard()
}

func qaDashboard() error {
	tasks := []string{
		"Build/compile:go build ./...",
		"Build/tracekit:go build -ldflags '" + ldflags() + "' -o " + binary + " ./cmd/tracekit",
		"Test/unit:go test -json -cover ./...",
		// watcher, worker and store tests exercise goroutines and SQLite
		"Test/race:go test -race -json -timeout=5m ./...",
		"Lint/vet:go vet ./...",
		"Lint/gofmt:gofmt -l .",
	}
	for _, linter := range qaLinters {
		tasks = append(tasks, linterTask(linter))
	}
	tasks = append(tasks,
		"Lint/reports:go run ./cmd/tracekit lint "+sampleTrace,
		"Security/govulncheck:govulncheck ./...",
	)
	return runFoDashboard(tasks...)
}

var qaLinters = []string{"gocyclo", "gosec", "staticcheck", "errcheck", "revive", "misspell"}

// linterTask is a fo task running a single golangci-lint linter with SARIF output.
func linterTask(name string) string {
	return "Lint/" + name + ":golangci-lint run --allow-parallel-runners --enable-only " + name + " --output.sarif.path=stdout ./..."
}

func qaCLI() error {
	fmt.Println("═══ Full QA ═══")
	return runSequential(
		step{"Build", "go", []string{"build", "-ldflags", ldflags(), "-o", binary, "./cmd/tracekit"}},
		step{"Test", "go", []string{"test", "-cover", "./..."}},
		step{"Race", "go", []string{"test", "-race", "-timeout=5m", "./..."}},
		step{"Golangci-lint", "golangci-lint", []string{"run", "./..."}},
		step{"Govulncheck", "govulncheck", []string{"./..."}},
	)
}

// Reports builds tracekit and lints the sample reports, printing SARIF.
func Reports() error {
	return runSequential(
		step{"Build", "go", []string{"build", "-ldflags", ldflags(), "-o", binary, "./cmd/tracekit"}},
		step{"Lint reports", binary, []string{"lint", sampleTrace}},
		step{"Stats", binary, []string{"stats", "--plain", sampleTrace}},
	)
}

// ----------------------------------------------------------------------------
// Utility: Clean
// ----------------------------------------------------------------------------

// Clean removes build artifacts and local tracekit databases.
func Clean() error {
	fmt.Println("Cleaning build artifacts...")
	for _, path := range []string{"bin", "tracekit.db", "tracekit-history.json"} {
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

type step struct {
	name string
	cmd  string
	args []string
}

func runSequential(steps ...step) error {
	for _, s := range steps {
		fmt.Printf("→ %s\n", s.name)
		cmd := exec.Command(s.cmd, s.args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s failed: %w", s.name, err)
		}
	}
	return nil
}

func runFoDashboard(tasks ...string) error {
	// Find fo binary - prefer local dev build, then PATH
	foBin := os.Getenv("HOME") + "/Projects/fo/bin/fo"
	if _, err := os.Stat(foBin); err != nil {
		var lookupErr error
		foBin, lookupErr = exec.LookPath("fo")
		if lookupErr != nil {
			return fmt.Errorf("fo binary not found at ~/Projects/fo/bin/fo or in PATH")
		}
	}

	args := []string{"--dashboard"}
	for _, t := range tasks {
		args = append(args, "--task", t)
	}

	cmd := exec.Command(foBin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "PATH="+os.Getenv("PATH")+":"+os.Getenv("HOME")+"/go/bin")
	return cmd.Run()
}
