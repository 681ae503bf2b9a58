package rules

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoadSchemaStringThenAddFactSucceeds(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if err := engine.LoadSchemaString(`Decl evidence(Category, File, Points) descr [mode("-", "-", "-")].`); err != nil {
		t.Fatalf("LoadSchemaString() error = %v", err)
	}

	if err := engine.AddFact("evidence", "playbook_coverage", "playbooks/a.yaml", int64(20)); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}
}

func TestAddFactRejectsUndeclaredPredicate(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.LoadSchemaString(`Decl evidence(Category, File, Points).`); err != nil {
		t.Fatalf("LoadSchemaString() error = %v", err)
	}

	if err := engine.AddFact("not_declared", "x"); err == nil {
		t.Fatal("AddFact() on an undeclared predicate should error")
	}
}

func TestAddFactRejectsArityMismatch(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.LoadSchemaString(`Decl evidence(Category, File, Points).`); err != nil {
		t.Fatalf("LoadSchemaString() error = %v", err)
	}

	if err := engine.AddFact("evidence", "only", "two"); err == nil {
		t.Fatal("AddFact() with the wrong arity should error")
	}
}

func TestQueryDerivesGroupedSum(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	schema := `
Decl evidence(Category, File, Points) descr [mode("-", "-", "-")].
Decl category_total(Category, Total) descr [mode("-", "-")].

category_total(Category, Total) :-
	evidence(Category, _, Points) |>
	do fn:group_by(Category),
	let Total = fn:sum(Points).
`
	if err := engine.LoadSchemaString(schema); err != nil {
		t.Fatalf("LoadSchemaString() error = %v", err)
	}

	facts := []struct {
		category string
		file     string
		points   int64
	}{
		{"playbook_coverage", "playbooks/a.yaml", 10},
		{"playbook_coverage", "playbooks/b.yaml", 10},
		{"visual_testing", "snapshots/home.png", 10},
	}
	for _, f := range facts {
		if err := engine.AddFact("evidence", f.category, f.file, f.points); err != nil {
			t.Fatalf("AddFact(%s) error = %v", f.category, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := engine.Query(ctx, "category_total(Category, Total)")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	totals := make(map[string]int64)
	for _, row := range rows {
		name, _ := row["Category"].(string)
		switch v := row["Total"].(type) {
		case int64:
			totals[name] = v
		case float64:
			totals[name] = int64(v)
		}
	}

	if totals["playbook_coverage"] != 20 {
		t.Fatalf("playbook_coverage total = %d, want 20", totals["playbook_coverage"])
	}
	if totals["visual_testing"] != 10 {
		t.Fatalf("visual_testing total = %d, want 10", totals["visual_testing"])
	}
}

func TestQueryOnUndeclaredPredicateErrors(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.LoadSchemaString(`Decl evidence(Category, File, Points) descr [mode("-", "-", "-")].`); err != nil {
		t.Fatalf("LoadSchemaString() error = %v", err)
	}

	if _, err := engine.Query(context.Background(), "missing(X)"); err == nil {
		t.Fatal("Query() on an undeclared predicate should error")
	}
}

func TestFactLimitIsEnforced(t *testing.T) {
	cfg := Config{FactLimit: 1}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.LoadSchemaString(`Decl evidence(Category, File, Points).`); err != nil {
		t.Fatalf("LoadSchemaString() error = %v", err)
	}

	if err := engine.AddFact("evidence", "a", "f1", int64(1)); err != nil {
		t.Fatalf("first AddFact() error = %v", err)
	}
	if err := engine.AddFact("evidence", "b", "f2", int64(1)); err == nil {
		t.Fatal("AddFact() beyond FactLimit should error")
	}
}
