package scorer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Evidence is one point-earning observation: file matched a declared
// pattern, contributing points to a category.
type Evidence struct {
	Category string
	File     string
	Points   int
	Note     string
}

// Collect walks root and gathers Evidence across every category,
// running one collector goroutine per category (bounded by
// errgroup.WithContext) since each glob-and-stat pass is independent
// I/O.
func Collect(ctx context.Context, root string) ([]Evidence, error) {
	collectors := []func(string) []Evidence{
		collectPlaybooks,
		collectVisual,
		collectInteraction,
		collectPerformance,
		collectLoadTesting,
		collectDeterministicReplay,
		collectCrossBrowser,
		collectAccessibility,
		collectDocumentation,
		collectRuntimeHealth,
	}

	results := make([][]Evidence, len(collectors))
	eg, _ := errgroup.WithContext(ctx)
	for i, c := range collectors {
		i, c := i, c
		eg.Go(func() error {
			results[i] = c(root)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var all []Evidence
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func globAll(root string, patterns ...string) []string {
	var matches []string
	for _, p := range patterns {
		m, err := filepath.Glob(filepath.Join(root, p))
		if err != nil {
			continue
		}
		matches = append(matches, m...)
	}
	return matches
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// capped awards a category's full point ceiling to the first matching
// file found — structural presence is what earns the points — and
// nothing further to additional matches in the same category, matching
// the full-credit-on-presence behavior the single-file categories
// (performance, cross-browser, accessibility) already use.
func capped(category string, earnedSoFar int) int {
	if earnedSoFar > 0 {
		return 0
	}
	return MaxPoints[category]
}

func collectPlaybooks(root string) []Evidence {
	var ev []Evidence
	earned := 0
	for _, f := range globAll(root, "playbooks/*.yaml", "playbooks/*.yml") {
		pts := capped(CategoryPlaybookCoverage, earned)
		if pts == 0 {
			break
		}
		earned += pts
		ev = append(ev, Evidence{Category: CategoryPlaybookCoverage, File: f, Points: pts, Note: "playbook file"})
	}
	return ev
}

func collectVisual(root string) []Evidence {
	var ev []Evidence
	earned := 0
	for _, f := range globAll(root, "snapshots/*.png", "snapshots/*-mobile.png", "snapshots/*-tablet.png", "snapshots/*-dark.png") {
		pts := capped(CategoryVisualTesting, earned)
		if pts == 0 {
			break
		}
		earned += pts
		ev = append(ev, Evidence{Category: CategoryVisualTesting, File: f, Points: pts, Note: "visual snapshot"})
	}
	return ev
}

func collectInteraction(root string) []Evidence {
	var ev []Evidence
	earned := 0
	for _, f := range globAll(root, "tests/*.rs", "tests/*.ts", "tests/*.js") {
		pts := capped(CategoryInteractionCoverage, earned)
		if pts == 0 {
			break
		}
		earned += pts
		ev = append(ev, Evidence{Category: CategoryInteractionCoverage, File: f, Points: pts, Note: "interaction test"})
	}
	return ev
}

func collectPerformance(root string) []Evidence {
	var ev []Evidence
	for _, name := range []string{"baseline.json", "benchmark.json"} {
		p := filepath.Join(root, name)
		if exists(p) {
			ev = append(ev, Evidence{Category: CategoryPerformance, File: p, Points: MaxPoints[CategoryPerformance], Note: "performance baseline"})
			break
		}
	}
	return ev
}

func collectLoadTesting(root string) []Evidence {
	var ev []Evidence
	earned := 0
	for _, name := range []string{"load-test.yaml", "load-test.yml", "chaos.yaml", "chaos.yml"} {
		p := filepath.Join(root, name)
		if !exists(p) {
			continue
		}
		pts := capped(CategoryLoadTesting, earned)
		if pts == 0 {
			break
		}
		earned += pts
		ev = append(ev, Evidence{Category: CategoryLoadTesting, File: p, Points: pts, Note: "load/chaos configuration"})
	}
	return ev
}

func collectDeterministicReplay(root string) []Evidence {
	var ev []Evidence
	earned := 0
	for _, f := range globAll(root, "recordings/*.json") {
		base := filepath.Base(f)
		prefix := "recording"
		switch {
		case strings.HasPrefix(base, "happy-"):
			prefix = "happy-path recording"
		case strings.HasPrefix(base, "error-"):
			prefix = "error-path recording"
		case strings.HasPrefix(base, "edge-"):
			prefix = "edge-case recording"
		}
		pts := capped(CategoryDeterministicReplay, earned)
		if pts == 0 {
			break
		}
		earned += pts
		ev = append(ev, Evidence{Category: CategoryDeterministicReplay, File: f, Points: pts, Note: prefix})
	}
	return ev
}

func collectCrossBrowser(root string) []Evidence {
	for _, name := range []string{"browsers.yaml", "browsers.yml"} {
		p := filepath.Join(root, name)
		if exists(p) {
			return []Evidence{{Category: CategoryCrossBrowser, File: p, Points: MaxPoints[CategoryCrossBrowser], Note: "cross-browser matrix"}}
		}
	}
	return nil
}

func collectAccessibility(root string) []Evidence {
	for _, name := range []string{"a11y.yaml", "a11y.yml", "accessibility.yaml", "accessibility.yml"} {
		p := filepath.Join(root, name)
		if exists(p) {
			return []Evidence{{Category: CategoryAccessibility, File: p, Points: MaxPoints[CategoryAccessibility], Note: "accessibility configuration"}}
		}
	}
	return nil
}

func collectDocumentation(root string) []Evidence {
	var ev []Evidence
	earned := 0
	for _, f := range globAll(root, "README.md", "docs/*.md") {
		pts := capped(CategoryDocumentation, earned)
		if pts == 0 {
			break
		}
		earned += pts
		ev = append(ev, Evidence{Category: CategoryDocumentation, File: f, Points: pts, Note: "documentation"})
	}
	return ev
}

// collectRuntimeHealth looks for the grade-cap gate's evidence: a
// recorded results file or a populated .probar/results/ directory.
func collectRuntimeHealth(root string) []Evidence {
	p := filepath.Join(root, "probar-results.json")
	if exists(p) {
		return []Evidence{{Category: CategoryRuntimeHealth, File: p, Points: MaxPoints[CategoryRuntimeHealth], Note: "recorded run results"}}
	}
	if matches := globAll(root, ".probar/results/*"); len(matches) > 0 {
		return []Evidence{{Category: CategoryRuntimeHealth, File: matches[0], Points: MaxPoints[CategoryRuntimeHealth], Note: "recorded run results"}}
	}
	return nil
}
