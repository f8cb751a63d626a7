package engine

import (
	"fmt"
	"sync"

	"github.com/petrijr/stepflow/pkg/api"
)

// handlerRegistry maps step types to handlers and gather-reduce names to
// reduce operators. Control-flow and data-operation step types are served
// by the engine itself and never hit this registry.
type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[api.StepType]api.Handler
	reducers map[string]api.ReduceFunc
}

func newHandlerRegistry() *handlerRegistry {
	r := &handlerRegistry{
		handlers: make(map[api.StepType]api.Handler),
		reducers: make(map[string]api.ReduceFunc),
	}
	r.reducers["sum"] = reduceSum
	r.reducers["concat"] = reduceConcat
	r.reducers["merge"] = reduceMerge
	return r
}

func (r *handlerRegistry) RegisterHandler(t api.StepType, h api.Handler) error {
	if !t.Valid() {
		return fmt.Errorf("unknown step type %q", t)
	}
	if h == nil {
		return fmt.Errorf("nil handler for step type %q", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
	return nil
}

func (r *handlerRegistry) Handler(t api.StepType) (api.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

func (r *handlerRegistry) RegisterReducer(name string, fn api.ReduceFunc) error {
	if name == "" {
		return fmt.Errorf("reducer name is required")
	}
	if fn == nil {
		return fmt.Errorf("nil reducer %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reducers[name] = fn
	return nil
}

func (r *handlerRegistry) Reducer(name string) (api.ReduceFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.reducers[name]
	return fn, ok
}

// Built-in reducers. The fold starts with a nil accumulator, which every
// reducer treats as its identity.

func reduceSum(acc, value any) (any, error) {
	fv, okV := toFloat(value)
	if !okV {
		return nil, fmt.Errorf("sum reducer: non-numeric operand %v", value)
	}
	if acc == nil {
		return fv, nil
	}
	fa, okA := toFloat(acc)
	if !okA {
		return nil, fmt.Errorf("sum reducer: non-numeric accumulator %v", acc)
	}
	return fa + fv, nil
}

func reduceConcat(acc, value any) (any, error) {
	if acc == nil {
		return []any{value}, nil
	}
	list, ok := acc.([]any)
	if !ok {
		list = []any{acc}
	}
	return append(list, value), nil
}

func reduceMerge(acc, value any) (any, error) {
	vm, okV := value.(map[string]any)
	if !okV {
		return nil, fmt.Errorf("merge reducer: operands must be maps")
	}
	if acc == nil {
		acc = map[string]any{}
	}
	am, okA := acc.(map[string]any)
	if !okA {
		return nil, fmt.Errorf("merge reducer: operands must be maps")
	}
	out := make(map[string]any, len(am)+len(vm))
	for k, v := range am {
		out[k] = v
	}
	for k, v := range vm {
		out[k] = v
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case float32:
		return float64(tv), true
	case int:
		return float64(tv), true
	case int32:
		return float64(tv), true
	case int64:
		return float64(tv), true
	default:
		return 0, false
	}
}
