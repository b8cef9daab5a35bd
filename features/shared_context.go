package features

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cucumber/godog"
)

// SharedContext provides common test functionality for all test suites
type SharedContext struct {
	// Output from any operation (an expanded document, a build summary)
	Output    string
	LastError error

	// WorkingDir is a scratch project directory, created on demand.
	WorkingDir string

	// Cleanup functions
	CleanupFuncs []func()
}

// NewSharedContext creates a new shared test context
func NewSharedContext() *SharedContext {
	return &SharedContext{}
}

// Dir returns the scenario's working directory, creating it on first use.
func (c *SharedContext) Dir() (string, error) {
	if c.WorkingDir != "" {
		return c.WorkingDir, nil
	}
	dir, err := os.MkdirTemp("", "stamp-feature-*")
	if err != nil {
		return "", err
	}
	c.WorkingDir = dir
	c.CleanupFuncs = append(c.CleanupFuncs, func() { _ = os.RemoveAll(dir) })
	return dir, nil
}

// WriteFile writes content to a path relative to the working directory.
func (c *SharedContext) WriteFile(rel, content string) error {
	dir, err := c.Dir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// Cleanup runs all cleanup functions
func (c *SharedContext) Cleanup() {
	for i := len(c.CleanupFuncs) - 1; i >= 0; i-- {
		if fn := c.CleanupFuncs[i]; fn != nil {
			fn()
		}
	}
	c.CleanupFuncs = nil
}

// Reset clears the context for a new scenario
func (c *SharedContext) Reset() {
	c.Output = ""
	c.LastError = nil
	c.WorkingDir = ""
}

// =============================================================================
// UNIVERSAL STEP DEFINITIONS
// =============================================================================

// TheOutputShouldBe compares the output with a doc string, ignoring
// surrounding whitespace.
func (c *SharedContext) TheOutputShouldBe(expected *godog.DocString) error {
	if c.LastError != nil {
		return fmt.Errorf("expected output but got error: %v", c.LastError)
	}
	want := strings.TrimSpace(expected.Content)
	got := strings.TrimSpace(c.Output)
	if got != want {
		return fmt.Errorf("output mismatch\nExpected:\n%s\nActual:\n%s", want, got)
	}
	return nil
}

// TheOutputShouldContain checks if the output contains the expected text
func (c *SharedContext) TheOutputShouldContain(expected string) error {
	if strings.Contains(c.Output, expected) {
		return nil
	}
	if c.Output == "" {
		return fmt.Errorf("expected output to contain %q but no output was captured", expected)
	}
	return fmt.Errorf("output does not contain %q\nActual output:\n%s", expected, preview(c.Output))
}

// TheOutputShouldNotContain checks that the output does not contain the
// unexpected text
func (c *SharedContext) TheOutputShouldNotContain(unexpected string) error {
	if strings.Contains(c.Output, unexpected) {
		return fmt.Errorf("output contains unexpected text %q\nActual output:\n%s", unexpected, preview(c.Output))
	}
	return nil
}

// TheOutputShouldMatch checks if output matches a regex pattern
func (c *SharedContext) TheOutputShouldMatch(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	if !re.MatchString(c.Output) {
		return fmt.Errorf("output does not match pattern %q\nActual output:\n%s", pattern, preview(c.Output))
	}
	return nil
}

// TheErrorShouldMention checks the last error's message
func (c *SharedContext) TheErrorShouldMention(expected string) error {
	if c.LastError == nil {
		return fmt.Errorf("expected an error mentioning %q but there was none", expected)
	}
	if !strings.Contains(c.LastError.Error(), expected) {
		return fmt.Errorf("error %q does not mention %q", c.LastError.Error(), expected)
	}
	return nil
}

// ThereShouldBeNoError fails when the last operation failed
func (c *SharedContext) ThereShouldBeNoError() error {
	if c.LastError != nil {
		return fmt.Errorf("unexpected error: %v", c.LastError)
	}
	return nil
}

// AFileShouldExist checks a file relative to the working directory
func (c *SharedContext) AFileShouldExist(rel string) error {
	if _, err := os.Stat(filepath.Join(c.WorkingDir, filepath.FromSlash(rel))); err != nil {
		return fmt.Errorf("file %s does not exist", rel)
	}
	return nil
}

// AFileShouldNotExist checks that no file exists at rel
func (c *SharedContext) AFileShouldNotExist(rel string) error {
	if _, err := os.Stat(filepath.Join(c.WorkingDir, filepath.FromSlash(rel))); err == nil {
		return fmt.Errorf("file %s exists", rel)
	}
	return nil
}

// TheFileShouldContain checks the content of a file relative to the working
// directory
func (c *SharedContext) TheFileShouldContain(rel, expected string) error {
	b, err := os.ReadFile(filepath.Join(c.WorkingDir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("reading %s: %w", rel, err)
	}
	if !strings.Contains(string(b), expected) {
		return fmt.Errorf("file %s does not contain %q\nActual content:\n%s", rel, expected, preview(string(b)))
	}
	return nil
}

func preview(s string) string {
	if len(s) > 500 {
		return s[:500] + "... (truncated)"
	}
	return s
}

// =============================================================================
// REGISTRATION
// =============================================================================

// RegisterSharedSteps registers all shared step definitions with godog
func RegisterSharedSteps(ctx *godog.ScenarioContext, shared *SharedContext) {
	ctx.Step(`^the output should be:$`, shared.TheOutputShouldBe)
	ctx.Step(`^the output should contain "([^"]*)"$`, shared.TheOutputShouldContain)
	ctx.Step(`^the output should contain '([^']*)'$`, shared.TheOutputShouldContain)
	ctx.Step(`^the output should not contain "([^"]*)"$`, shared.TheOutputShouldNotContain)
	ctx.Step(`^the output should not contain '([^']*)'$`, shared.TheOutputShouldNotContain)
	ctx.Step(`^the output should match "([^"]*)"$`, shared.TheOutputShouldMatch)
	ctx.Step(`^the error should mention "([^"]*)"$`, shared.TheErrorShouldMention)
	ctx.Step(`^the error should mention '([^']*)'$`, shared.TheErrorShouldMention)
	ctx.Step(`^there should be no error$`, shared.ThereShouldBeNoError)

	// File system
	ctx.Step(`^a file "([^"]*)" should exist$`, shared.AFileShouldExist)
	ctx.Step(`^a file "([^"]*)" should not exist$`, shared.AFileShouldNotExist)
	ctx.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, shared.TheFileShouldContain)
	ctx.Step(`^the file "([^"]*)" should contain '([^']*)'$`, shared.TheFileShouldContain)

	// Cleanup after each scenario
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		shared.Cleanup()
		shared.Reset()
		return ctx, nil
	})
}
