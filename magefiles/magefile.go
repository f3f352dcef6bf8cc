//go:build mage

// Build targets for tally.
//
//	mage build    compile bin/tally with the version stamped in
//	mage test     run all tests
//	mage race     run all tests with the race detector
//	mage cover    write coverage.out and print the per-function summary
//	mage lint     run golangci-lint
//	mage clean    remove build artifacts
//	mage install  copy bin/tally to GOPATH/bin
//	mage stats    print production and test line counts per package
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName   = "tally"
	binaryDir    = "bin"
	cmdDir       = "./cmd/tally"
	coverProfile = "coverage.out"
	versionVar   = "github.com/mesh-intelligence/tally/internal/cli.Version"
)

// Build compiles bin/tally. TALLY_VERSION overrides the stamped version.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-o", filepath.Join(binaryDir, binaryName)}
	if v := os.Getenv("TALLY_VERSION"); v != "" {
		args = append(args, "-ldflags", "-X "+versionVar+"="+v)
	}
	return sh.RunV("go", append(args, cmdDir)...)
}

// Test runs all tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Race runs all tests with the race detector.
func Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Cover writes a coverage profile and prints the summary.
func Cover() error {
	if err := sh.RunV("go", "test", "-coverprofile="+coverProfile, "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func="+coverProfile)
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	for _, p := range []string{binaryDir, coverProfile} {
		if err := os.RemoveAll(p); err != nil {
			return err
		}
	}
	return nil
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

// Stats prints production and test line counts per package directory.
func Stats() error {
	type lines struct{ prod, test int }
	byDir := map[string]*lines{}

	err := filepath.WalkDir(".", func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", binaryDir, "magefiles", "_examples":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		n, err := countLines(path)
		if err != nil {
			return err
		}
		dir := filepath.Dir(path)
		if byDir[dir] == nil {
			byDir[dir] = &lines{}
		}
		if strings.HasSuffix(path, "_test.go") {
			byDir[dir].test += n
		} else {
			byDir[dir].prod += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var total lines
	for _, dir := range dirs {
		l := byDir[dir]
		fmt.Printf("%-24s %6d %6d\n", dir, l.prod, l.test)
		total.prod += l.prod
		total.test += l.test
	}
	fmt.Printf("%-24s %6d %6d\n", "total", total.prod, total.test)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}
