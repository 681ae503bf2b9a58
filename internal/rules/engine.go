// Package rules wraps the Google Mangle Datalog engine for the one
// thing probar needs from it: representing the Project Scorer's
// collected evidence as facts and deriving per-category point totals
// through a grouped-sum aggregation rule instead of an imperative loop.
package rules

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"
)

// Config holds Mangle engine configuration.
type Config struct {
	FactLimit int
}

// DefaultConfig returns the scorer's defaults: a fact limit generous
// enough for any real project's evidence set.
func DefaultConfig() Config {
	return Config{FactLimit: 10_000}
}

// Engine wraps the Google Mangle engine behind a small fact-store API:
// load a schema once, push facts incrementally, and query derived
// predicates without touching Mangle's AST types directly.
type Engine struct {
	mu     sync.Mutex
	config Config

	store          factstore.ConcurrentFactStore
	programInfo    *analysis.ProgramInfo
	queryContext   *mengine.QueryContext
	predicateIndex map[string]ast.PredicateSym
	factCount      int
}

// Fact is a single fact to push into the engine.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// NewEngine constructs an Engine with no schema loaded yet.
func NewEngine(cfg Config) (*Engine, error) {
	base := factstore.NewSimpleInMemoryStore()
	return &Engine{
		config:         cfg,
		store:          factstore.NewConcurrentFactStore(base),
		predicateIndex: make(map[string]ast.PredicateSym),
	}, nil
}

// LoadSchemaString parses and analyzes a Mangle schema (decls plus any
// derivation rules), replacing whatever schema was loaded before.
func (e *Engine) LoadSchemaString(schema string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(schema)))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}

	predicateIndex := make(map[string]ast.PredicateSym, len(programInfo.Decls))
	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(programInfo.Decls))
	for sym, decl := range programInfo.Decls {
		predicateIndex[sym.Symbol] = sym
		predToDecl[sym] = decl
	}

	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, clause := range programInfo.Rules {
		predToRules[clause.Head.Predicate] = append(predToRules[clause.Head.Predicate], clause)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.programInfo = programInfo
	e.predicateIndex = predicateIndex
	e.queryContext = &mengine.QueryContext{
		PredToRules: predToRules,
		PredToDecl:  predToDecl,
		Store:       e.store,
	}
	return nil
}

// AddFact inserts a fact and re-evaluates the loaded rules against it.
func (e *Engine) AddFact(predicate string, args ...interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.programInfo == nil {
		return fmt.Errorf("no schema loaded; call LoadSchemaString first")
	}
	sym, ok := e.predicateIndex[predicate]
	if !ok {
		return fmt.Errorf("predicate %s is not declared in the schema", predicate)
	}
	if len(args) != sym.Arity {
		return fmt.Errorf("predicate %s expects %d args, got %d", predicate, sym.Arity, len(args))
	}
	if e.config.FactLimit > 0 && e.factCount >= e.config.FactLimit {
		return fmt.Errorf("fact limit exceeded: %d", e.config.FactLimit)
	}

	atomArgs := make([]ast.BaseTerm, len(args))
	for i, raw := range args {
		term, err := toBaseTerm(raw)
		if err != nil {
			return fmt.Errorf("predicate %s arg %d: %w", predicate, i, err)
		}
		atomArgs[i] = term
	}

	if e.store.Add(ast.Atom{Predicate: sym, Args: atomArgs}) {
		e.factCount++
	}

	if _, err := mengine.EvalProgramWithStats(e.programInfo, e.store); err != nil {
		return fmt.Errorf("evaluate rules: %w", err)
	}
	return nil
}

func toBaseTerm(v interface{}) (ast.BaseTerm, error) {
	switch t := v.(type) {
	case string:
		return ast.String(t), nil
	case int:
		return ast.Number(int64(t)), nil
	case int64:
		return ast.Number(t), nil
	case float64:
		return ast.Float64(t), nil
	case bool:
		if t {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	default:
		return nil, fmt.Errorf("unsupported fact argument type %T", v)
	}
}

// Query evaluates a fully-variable query such as "category_total(Category, Total)"
// and returns one row per matching tuple, keyed by variable name.
func (e *Engine) Query(ctx context.Context, query string) ([]map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	atom, variables, err := parseQueryShape(query)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	qc := e.queryContext
	if qc == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("no schema loaded; cannot execute query")
	}
	decl, ok := qc.PredToDecl[atom.Predicate]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("predicate %s is not declared", atom.Predicate.Symbol)
	}
	modes := decl.Modes()
	if len(modes) == 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("predicate %s has no modes declared", atom.Predicate.Symbol)
	}
	mode := modes[0]
	e.mu.Unlock()

	var results []map[string]interface{}
	err = qc.EvalQuery(atom, mode, unionfind.New(), func(fact ast.Atom) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := make(map[string]interface{}, len(variables))
		for _, v := range variables {
			if v.index >= len(fact.Args) {
				continue
			}
			row[v.name] = fromBaseTerm(fact.Args[v.index])
		}
		results = append(results, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases engine resources. The in-memory store needs no
// explicit teardown; this exists so callers can `defer engine.Close()`
// the way they would any other resource.
func (e *Engine) Close() error { return nil }

type queryVariable struct {
	name  string
	index int
}

func parseQueryShape(query string) (ast.Atom, []queryVariable, error) {
	clean := strings.TrimSpace(query)
	if clean == "" {
		return ast.Atom{}, nil, fmt.Errorf("empty query")
	}
	clean = strings.TrimSuffix(clean, ".")

	atom, err := parse.Atom(clean)
	if err != nil {
		return ast.Atom{}, nil, fmt.Errorf("parse query %q: %w", query, err)
	}

	variables := make([]queryVariable, 0, len(atom.Args))
	for idx, arg := range atom.Args {
		if v, ok := arg.(ast.Variable); ok {
			variables = append(variables, queryVariable{name: v.Symbol, index: idx})
		}
	}
	return atom, variables, nil
}

func fromBaseTerm(term ast.BaseTerm) interface{} {
	c, ok := term.(ast.Constant)
	if !ok {
		return fmt.Sprintf("%v", term)
	}
	switch c.Type {
	case ast.StringType, ast.NameType, ast.BytesType:
		return c.Symbol
	case ast.NumberType:
		return c.NumValue
	case ast.Float64Type:
		return math.Float64frombits(uint64(c.NumValue))
	default:
		return c.String()
	}
}
