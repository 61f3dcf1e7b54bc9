// Package main provides build targets for the boards project using Mage.
//
// Usage:
//
//	mage build          Compile the board binary to bin/
//	mage test           Run all tests, including the concurrency stress test
//	mage testShort      Run tests with -short
//	mage testPostgres   Run the postgres backend tests against $BOARDS_TEST_POSTGRES_DSN
//	mage lint           Run golangci-lint
//	mage clean          Remove build artifacts
//	mage install        Install board to GOPATH/bin
//	mage stats          Print Go lines of code
package main

import (
	"bufio"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "board"
	binaryDir  = "bin"
	cmdDir     = "./cmd/board"
	binLint    = "golangci-lint"

	postgresDSNEnv = "BOARDS_TEST_POSTGRES_DSN"
)

// Build compiles the board binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs every test with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// TestShort skips the concurrency stress test.
func TestShort() error {
	return sh.RunV("go", "test", "-short", "./...")
}

// TestPostgres runs the postgres backend tests. It needs a reachable
// database in $BOARDS_TEST_POSTGRES_DSN.
func TestPostgres() error {
	if os.Getenv(postgresDSNEnv) == "" {
		return errors.New(postgresDSNEnv + " is not set")
	}
	return sh.RunV("go", "test", "-count=1", "./internal/postgres/...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV("go", "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output("go", "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), filepath.Join(binaryDir, binaryName))
}

// Stats prints Go lines of code per top-level package directory.
func Stats() error {
	prod := map[string]int{}
	var prodTotal, testTotal int

	err := filepath.WalkDir(".", func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			switch {
			case path == "vendor", path == ".git", path == binaryDir, path == "magefiles",
				strings.HasPrefix(d.Name(), "_"):
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		n, err := countLines(path)
		if err != nil {
			return nil
		}
		if strings.HasSuffix(path, "_test.go") {
			testTotal += n
			return nil
		}
		prodTotal += n
		prod[filepath.Dir(path)] += n
		return nil
	})
	if err != nil {
		return err
	}

	for _, dir := range slices.Sorted(maps.Keys(prod)) {
		fmt.Printf("%-28s %6d\n", dir, prod[dir])
	}
	fmt.Printf("Lines of code (Go, production): %d\n", prodTotal)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testTotal)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
