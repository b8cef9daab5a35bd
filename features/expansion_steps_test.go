package features

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cucumber/godog"

	"github.com/johnjansen/stamp/components"
)

// ExpansionTestSuite holds test state for expansion scenarios
type ExpansionTestSuite struct {
	registry *components.Registry
	shared   *SharedContext
}

// NewExpansionTestSuite creates a new test suite
func NewExpansionTestSuite(shared *SharedContext) *ExpansionTestSuite {
	return &ExpansionTestSuite{shared: shared}
}

// Reset clears the test state
func (s *ExpansionTestSuite) Reset() {
	s.registry = components.NewRegistry()
}

// InitializeExpansionScenario registers the expansion step definitions
func InitializeExpansionScenario(ctx *godog.ScenarioContext, shared *SharedContext) {
	suite := NewExpansionTestSuite(shared)

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		suite.Reset()
		return ctx, nil
	})

	// Registry
	ctx.Step(`^a component "([^"]*)" with parameters "([^"]*)" and template:$`, suite.aComponentWithParameters)
	ctx.Step(`^a component "([^"]*)" without parameters and template:$`, suite.aComponentWithoutParameters)
	ctx.Step(`^the components are self expanded$`, suite.theComponentsAreSelfExpanded)
	ctx.Step(`^the template of "([^"]*)" should be:$`, suite.theTemplateShouldBe)
	ctx.Step(`^the registry should be sealed$`, suite.theRegistryShouldBeSealed)

	// Documents
	ctx.Step(`^I expand the document:$`, suite.iExpandTheDocument)
	ctx.Step(`^expanding the output again should not change it$`, suite.expandingAgainShouldNotChangeIt)
	ctx.Step(`^expansion should fail with a (\w+)$`, suite.expansionShouldFailWith)
	ctx.Step(`^the recursion cycle should be "([^"]*)"$`, suite.theRecursionCycleShouldBe)
}

func (s *ExpansionTestSuite) aComponentWithParameters(name, params string, template *godog.DocString) error {
	return s.registry.Register(&components.Component{
		Name:       name,
		Parameters: strings.Split(params, ","),
		Template:   strings.TrimSpace(template.Content),
	})
}

func (s *ExpansionTestSuite) aComponentWithoutParameters(name string, template *godog.DocString) error {
	return s.registry.Register(&components.Component{
		Name:     name,
		Template: strings.TrimSpace(template.Content),
	})
}

func (s *ExpansionTestSuite) theComponentsAreSelfExpanded() error {
	_, s.shared.LastError = s.registry.SelfExpand()
	return nil
}

func (s *ExpansionTestSuite) theTemplateShouldBe(name string, expected *godog.DocString) error {
	c, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("component %s is not registered", name)
	}
	if want := strings.TrimSpace(expected.Content); c.Template != want {
		return fmt.Errorf("template of %s mismatch\nExpected:\n%s\nActual:\n%s", name, want, c.Template)
	}
	return nil
}

func (s *ExpansionTestSuite) theRegistryShouldBeSealed() error {
	if !s.registry.Sealed() {
		return fmt.Errorf("registry is not sealed")
	}
	return nil
}

func (s *ExpansionTestSuite) iExpandTheDocument(doc *godog.DocString) error {
	s.shared.Output, s.shared.LastError = components.ExpandDocument(doc.Content, s.registry)
	return nil
}

func (s *ExpansionTestSuite) expandingAgainShouldNotChangeIt() error {
	again, err := components.ExpandDocument(s.shared.Output, s.registry)
	if err != nil {
		return fmt.Errorf("second expansion failed: %w", err)
	}
	if again != s.shared.Output {
		return fmt.Errorf("second expansion changed the output\nFirst:\n%s\nSecond:\n%s", s.shared.Output, again)
	}
	return nil
}

func (s *ExpansionTestSuite) expansionShouldFailWith(kind string) error {
	err := s.shared.LastError
	if err == nil {
		return fmt.Errorf("expected a %s but expansion succeeded with:\n%s", kind, s.shared.Output)
	}

	var matched bool
	switch kind {
	case "DefinitionError":
		var target *components.DefinitionError
		matched = errors.As(err, &target)
	case "MissingParameterError":
		var target *components.MissingParameterError
		matched = errors.As(err, &target)
	case "RecursionLimitError":
		var target *components.RecursionLimitError
		matched = errors.As(err, &target)
	case "ParseError":
		var target *components.ParseError
		matched = errors.As(err, &target)
	default:
		return fmt.Errorf("unknown error kind %s", kind)
	}
	if !matched {
		return fmt.Errorf("expected a %s, got %T: %v", kind, err, err)
	}
	return nil
}

func (s *ExpansionTestSuite) theRecursionCycleShouldBe(expected string) error {
	var rl *components.RecursionLimitError
	if !errors.As(s.shared.LastError, &rl) {
		return fmt.Errorf("expected a RecursionLimitError, got %v", s.shared.LastError)
	}
	if got := strings.Join(rl.Cycle, " -> "); got != expected {
		return fmt.Errorf("cycle is %q, want %q", got, expected)
	}
	return nil
}
