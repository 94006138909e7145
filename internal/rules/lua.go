package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/flowpanel/internal/metric"
)

// DefaultScriptTimeout bounds one script execution.
const DefaultScriptTimeout = time.Second

type chunk struct {
	script string
	proto  *lua.FunctionProto
}

// LuaEvaluator runs rule scripts in a sandboxed Lua state.
//
// A script sees the globals value (last sample or nil), name (series name)
// and points (array of sample values) and returns the level:
//
//	return value > 0.9 and 2 or (value > 0.7 and 1 or 0)
//
// A boolean result maps to 1 or 0; nil or an empty script yields 0.
// The Lua state is not goroutine-safe, so calls are serialized.
type LuaEvaluator struct {
	mu      sync.Mutex
	L       *lua.LState
	chunks  map[string]chunk
	timeout time.Duration
	closed  bool
}

// LuaOption configures a LuaEvaluator.
type LuaOption func(*LuaEvaluator)

// WithScriptTimeout sets the per-call execution timeout.
func WithScriptTimeout(d time.Duration) LuaOption {
	return func(e *LuaEvaluator) {
		e.timeout = d
	}
}

// NewLuaEvaluator creates an evaluator with only the base, table, string
// and math libraries opened.
func NewLuaEvaluator(opts ...LuaOption) *LuaEvaluator {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// The base library can still reach the file system.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	e := &LuaEvaluator{
		L:       L,
		chunks:  make(map[string]chunk),
		timeout: DefaultScriptTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Level implements Evaluator.
func (e *LuaEvaluator) Level(ctx context.Context, r Rule, s metric.Series) (level int, err error) {
	if strings.TrimSpace(r.Script) == "" {
		return 0, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrEvaluatorClosed
	}

	proto, err := e.compileLocked(r)
	if err != nil {
		return 0, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	e.L.SetContext(ctx)
	defer e.L.RemoveContext()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic in rule %s: %v", r.UID, rec)
		}
	}()

	e.setGlobals(s)
	top := e.L.GetTop()
	e.L.Push(e.L.NewFunctionFromProto(proto))
	if err := e.L.PCall(0, 1, nil); err != nil {
		e.L.SetTop(top)
		return 0, errors.Wrapf(err, "rule %s", r.UID)
	}
	ret := e.L.Get(-1)
	e.L.SetTop(top)

	switch v := ret.(type) {
	case lua.LNumber:
		return int(v), nil
	case lua.LBool:
		if v {
			return 1, nil
		}
		return 0, nil
	case *lua.LNilType:
		return 0, nil
	default:
		return 0, errors.Wrapf(ErrBadLevel, "rule %s returned %s", r.UID, ret.Type())
	}
}

func (e *LuaEvaluator) compileLocked(r Rule) (*lua.FunctionProto, error) {
	if c, ok := e.chunks[r.UID]; ok && c.script == r.Script {
		return c.proto, nil
	}
	stmts, err := parse.Parse(strings.NewReader(r.Script), r.UID)
	if err != nil {
		return nil, errors.Wrapf(err, "parse rule %s", r.UID)
	}
	proto, err := lua.Compile(stmts, r.UID)
	if err != nil {
		return nil, errors.Wrapf(err, "compile rule %s", r.UID)
	}
	e.chunks[r.UID] = chunk{script: r.Script, proto: proto}
	return proto, nil
}

func (e *LuaEvaluator) setGlobals(s metric.Series) {
	L := e.L
	L.SetGlobal("name", lua.LString(s.Name))

	points := L.CreateTable(len(s.Points), 0)
	for _, p := range s.Points {
		points.Append(lua.LNumber(p.Value))
	}
	L.SetGlobal("points", points)

	if last, ok := s.Last(); ok {
		L.SetGlobal("value", lua.LNumber(last.Value))
	} else {
		L.SetGlobal("value", lua.LNil)
	}
}

// Close releases the Lua state. Close is idempotent.
func (e *LuaEvaluator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.chunks = nil
	e.L.Close()
	return nil
}
