package scorer

import (
	"context"
	"fmt"
	"sort"

	"github.com/paiml/probar/internal/rules"
)

const schema = `
Decl evidence(Category, File, Points) descr [mode("-", "-", "-")].
Decl category_total(Category, Total) descr [mode("-", "-")].

category_total(Category, Total) :-
	evidence(Category, _, Points) |>
	do fn:group_by(Category),
	let Total = fn:sum(Points).
`

// Category is one row of the scorecard: a named category's point
// ceiling, what it actually earned, and the evidence that earned it.
type Category struct {
	Name     string
	Max      int
	Earned   int
	Evidence []Evidence
}

// Scorecard is the top-level scoring result: categories summing to a
// 100-point normalized total, a letter grade, and the grade-cap
// outcome.
type Scorecard struct {
	Categories      []Category
	Total           int
	Max             int
	RawGrade        string
	Grade           string
	Capped          bool
	Recommendations []Recommendation
}

// Recommendation names a category with room to improve, ordered by
// potential points gained.
type Recommendation struct {
	Category        string
	PotentialPoints int
}

// Score represents collected evidence as Datalog facts, derives
// per-category totals as a grouped-sum rule rather than summing in Go,
// and applies the runtime-health grade-cap gate.
func Score(ctx context.Context, evidence []Evidence) (Scorecard, error) {
	engine, err := rules.NewEngine(rules.DefaultConfig())
	if err != nil {
		return Scorecard{}, fmt.Errorf("create scoring engine: %w", err)
	}
	defer engine.Close()

	if err := engine.LoadSchemaString(schema); err != nil {
		return Scorecard{}, fmt.Errorf("load scoring schema: %w", err)
	}

	byCategory := make(map[string][]Evidence)
	for _, e := range evidence {
		if err := engine.AddFact("evidence", e.Category, e.File, int64(e.Points)); err != nil {
			return Scorecard{}, fmt.Errorf("record evidence for %s: %w", e.Category, err)
		}
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}

	rows, err := engine.Query(ctx, "category_total(Category, Total)")
	if err != nil {
		return Scorecard{}, fmt.Errorf("derive category totals: %w", err)
	}

	earned := make(map[string]int, len(categoryOrder))
	for _, row := range rows {
		name, _ := row["Category"].(string)
		switch v := row["Total"].(type) {
		case int64:
			earned[name] = int(v)
		case float64:
			earned[name] = int(v)
		}
	}

	sc := Scorecard{Max: totalMaxPoints()}
	for _, name := range categoryOrder {
		max := MaxPoints[name]
		got := earned[name]
		if got > max {
			got = max // defensive: a rule bug should never inflate the total above the category ceiling
		}
		sc.Categories = append(sc.Categories, Category{Name: name, Max: max, Earned: got, Evidence: byCategory[name]})
		sc.Total += got
	}

	sc.RawGrade = grade(sc.Total)
	sc.Grade = sc.RawGrade
	if earned[CategoryRuntimeHealth] == 0 {
		sc.Capped = true
		if sc.Grade == "A" || sc.Grade == "B" {
			sc.Grade = "C"
		}
	}

	sc.Recommendations = recommendations(sc.Categories)
	return sc, nil
}

func grade(total int) string {
	switch {
	case total >= 90:
		return "A"
	case total >= 80:
		return "B"
	case total >= 70:
		return "C"
	case total >= 60:
		return "D"
	default:
		return "F"
	}
}

// recommendations orders categories by potential points gained
// (max - earned), descending, dropping categories already maxed out.
func recommendations(categories []Category) []Recommendation {
	var recs []Recommendation
	for _, c := range categories {
		if gap := c.Max - c.Earned; gap > 0 {
			recs = append(recs, Recommendation{Category: c.Name, PotentialPoints: gap})
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].PotentialPoints > recs[j].PotentialPoints
	})
	return recs
}
