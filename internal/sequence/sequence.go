// Package sequence generates chains of harmonics from a numeric expression
// over x. Expressions use Lua arithmetic syntax and may call functions from
// the math library; anything else is rejected before evaluation.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"

	"github.com/cbegin/theremin-go/internal/synth"
)

const MaxIterations = 20

var (
	ErrSyntax     = errors.New("expression syntax error")
	ErrForbidden  = errors.New("expression uses a forbidden construct")
	ErrNotNumber  = errors.New("expression did not produce a finite number")
	ErrIterations = fmt.Errorf("iterations must be between 1 and %d", MaxIterations)
)

var mathFuncs = map[string]bool{
	"abs": true, "ceil": true, "floor": true, "sqrt": true,
	"exp": true, "log": true, "log10": true, "pow": true, "fmod": true,
	"sin": true, "cos": true, "tan": true, "asin": true, "acos": true, "atan": true,
	"sinh": true, "cosh": true, "tanh": true,
	"min": true, "max": true, "deg": true, "rad": true,
}

var mathConsts = map[string]bool{"pi": true, "huge": true}

// Expr is a validated expression ready for evaluation.
type Expr struct {
	src   string
	proto *lua.FunctionProto
}

// Compile parses src and checks that it only contains numbers, the variable
// x, arithmetic operators, unary minus, math constants and math function
// calls.
func Compile(src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty expression: %w", ErrSyntax)
	}
	chunk, err := parse.Parse(strings.NewReader("return "+src), "<expr>")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), ErrSyntax)
	}
	if len(chunk) != 1 {
		return nil, fmt.Errorf("%q is not a single expression: %w", src, ErrForbidden)
	}
	ret, ok := chunk[0].(*ast.ReturnStmt)
	if !ok || len(ret.Exprs) != 1 {
		return nil, fmt.Errorf("%q is not a single expression: %w", src, ErrForbidden)
	}
	if err := check(ret.Exprs[0]); err != nil {
		return nil, err
	}
	proto, err := lua.Compile(chunk, "<expr>")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), ErrSyntax)
	}
	return &Expr{src: src, proto: proto}, nil
}

func (x *Expr) String() string { return x.src }

func check(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.NumberExpr:
		return nil
	case *ast.IdentExpr:
		if n.Value == "x" {
			return nil
		}
		return fmt.Errorf("identifier %q: %w", n.Value, ErrForbidden)
	case *ast.ArithmeticOpExpr:
		if err := check(n.Lhs); err != nil {
			return err
		}
		return check(n.Rhs)
	case *ast.UnaryMinusOpExpr:
		return check(n.Expr)
	case *ast.AttrGetExpr:
		if name, ok := mathMember(n); ok && mathConsts[name] {
			return nil
		}
		return fmt.Errorf("field access: %w", ErrForbidden)
	case *ast.FuncCallExpr:
		if n.Receiver != nil {
			return fmt.Errorf("method call %q: %w", n.Method, ErrForbidden)
		}
		get, ok := n.Func.(*ast.AttrGetExpr)
		if !ok {
			return fmt.Errorf("call of non-math function: %w", ErrForbidden)
		}
		name, ok := mathMember(get)
		if !ok || !mathFuncs[name] {
			return fmt.Errorf("call of %q: %w", name, ErrForbidden)
		}
		for _, a := range n.Args {
			if err := check(a); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%T: %w", e, ErrForbidden)
	}
}

// mathMember returns name for a math.name access.
func mathMember(g *ast.AttrGetExpr) (string, bool) {
	obj, ok := g.Object.(*ast.IdentExpr)
	if !ok || obj.Value != "math" {
		return "", false
	}
	key, ok := g.Key.(*ast.StringExpr)
	if !ok {
		return "", false
	}
	return key.Value, true
}

// newState returns a Lua state with only the math library loaded.
func newState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	if err := L.CallByParam(lua.P{
		Fn:      L.NewFunction(lua.OpenMath),
		NRet:    0,
		Protect: true,
	}, lua.LString(lua.MathLibName)); err != nil {
		L.Close()
		return nil, err
	}
	if ctx != nil {
		L.SetContext(ctx)
	}
	return L, nil
}

func (x *Expr) eval(L *lua.LState, v float64) (float64, error) {
	L.SetGlobal("x", lua.LNumber(v))
	L.Push(L.NewFunctionFromProto(x.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", x.src, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%q returned %s: %w", x.src, ret.Type(), ErrNotNumber)
	}
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q returned %v: %w", x.src, f, ErrNotNumber)
	}
	return f, nil
}

// Eval evaluates the expression with x bound to v. Evaluation stops when ctx
// is done.
func (x *Expr) Eval(ctx context.Context, v float64) (float64, error) {
	L, err := newState(ctx)
	if err != nil {
		return 0, err
	}
	defer L.Close()
	return x.eval(L, v)
}

// Evaluate compiles and evaluates src once.
func Evaluate(ctx context.Context, src string, v float64) (float64, error) {
	x, err := Compile(src)
	if err != nil {
		return 0, err
	}
	return x.Eval(ctx, v)
}

// IterationError reports the iteration at which generation stopped.
type IterationError struct {
	Iteration int
	Expr      string
	X         float64
	Err       error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("iteration %d of %q with x=%v: %v", e.Iteration, e.Expr, e.X, e.Err)
}

func (e *IterationError) Unwrap() error { return e.Err }

// Generate applies src repeatedly starting from the parent multiplier and adds
// a harmonic for every result, copying the parent's amplitude, smoothing,
// snap and trigger settings. Results that collide with existing harmonics are
// skipped but still feed the next iteration. A non-positive result is an
// error. On error the harmonics added so far are kept and returned along with
// an *IterationError.
func Generate(ctx context.Context, e *synth.Engine, parent float64, src string, iterations int) ([]float64, error) {
	if iterations < 1 || iterations > MaxIterations {
		return nil, ErrIterations
	}
	p, ok := e.Harmonic(parent)
	if !ok {
		return nil, fmt.Errorf("parent %v: %w", parent, synth.ErrHarmonicNotFound)
	}
	x, err := Compile(src)
	if err != nil {
		return nil, err
	}
	L, err := newState(ctx)
	if err != nil {
		return nil, err
	}
	defer L.Close()

	var added []float64
	cur := parent
	for i := 1; i <= iterations; i++ {
		next, err := x.eval(L, cur)
		if err != nil {
			return added, &IterationError{Iteration: i, Expr: x.src, X: cur, Err: err}
		}
		if next <= 0 {
			err := fmt.Errorf("multiplier %v: %w", next, synth.ErrInvalidValue)
			return added, &IterationError{Iteration: i, Expr: x.src, X: cur, Err: err}
		}
		if e.AddHarmonic(next,
			synth.WithAmplitude(p.Amplitude),
			synth.WithAmpSmoothing(p.AmpSmoothingMs),
			synth.WithPitchSmoothing(p.PitchSmoothingMs),
			synth.WithSnap(p.SnapEnabled),
			synth.WithTriggerKey(p.TriggerKey),
		) {
			added = append(added, next)
		}
		cur = next
	}
	return added, nil
}
