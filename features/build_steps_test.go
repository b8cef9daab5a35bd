package features

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/johnjansen/stamp"
	"github.com/johnjansen/stamp/site"
)

// BuildTestSuite holds test state for site build scenarios
type BuildTestSuite struct {
	markdown bool
	report   *site.Report
	shared   *SharedContext
}

// InitializeBuildScenario registers the build step definitions
func InitializeBuildScenario(ctx *godog.ScenarioContext, shared *SharedContext) {
	suite := &BuildTestSuite{shared: shared}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		suite.markdown = false
		suite.report = nil
		return ctx, nil
	})

	ctx.Step(`^the component file "([^"]*)":$`, suite.theComponentFile)
	ctx.Step(`^the source file "([^"]*)":$`, suite.theSourceFile)
	ctx.Step(`^markdown rendering is enabled$`, suite.markdownRenderingIsEnabled)
	ctx.Step(`^I build the site$`, suite.iBuildTheSite)
	ctx.Step(`^the build should report (\d+) written, (\d+) copied and (\d+) failed$`, suite.theBuildShouldReport)
}

func (s *BuildTestSuite) theComponentFile(name string, content *godog.DocString) error {
	return s.shared.WriteFile(filepath.Join("components", name), content.Content)
}

func (s *BuildTestSuite) theSourceFile(name string, content *godog.DocString) error {
	return s.shared.WriteFile(filepath.Join("src", name), content.Content)
}

func (s *BuildTestSuite) markdownRenderingIsEnabled() error {
	s.markdown = true
	return nil
}

func (s *BuildTestSuite) iBuildTheSite() error {
	dir, err := s.shared.Dir()
	if err != nil {
		return err
	}

	cfg := stamp.DefaultConfig()
	cfg.Components = filepath.Join(dir, "components")
	cfg.Source = filepath.Join(dir, "src")
	cfg.Out = filepath.Join(dir, "out")
	cfg.Markdown = s.markdown
	cfg.LogLevel = "error"

	kit, err := stamp.New(cfg)
	if err != nil {
		return fmt.Errorf("loading components: %w", err)
	}
	defer kit.Shutdown()

	s.report, err = kit.Build(context.Background())
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	var out strings.Builder
	for _, f := range s.report.Failed {
		fmt.Fprintln(&out, f.Error())
	}
	s.shared.Output = out.String()
	s.shared.LastError = s.report.Err()
	return nil
}

func (s *BuildTestSuite) theBuildShouldReport(written, copied, failed int) error {
	if s.report == nil {
		return fmt.Errorf("no build has run")
	}
	got := [3]int{len(s.report.Written), len(s.report.Copied), len(s.report.Failed)}
	if want := [3]int{written, copied, failed}; got != want {
		return fmt.Errorf("build reported %d written, %d copied, %d failed; want %d, %d, %d\n%s",
			got[0], got[1], got[2], written, copied, failed, s.shared.Output)
	}
	return nil
}
