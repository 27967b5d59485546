package lisp

import (
	"context"
	"sync"
)

// PoolSize bounds pmap's parallelism; it is configured per-invocation
// by the sandbox/agentloop layer (spec 5: "cap parallelism at the
// host's configured worker pool size") and threaded through Env so
// nested pmap calls inside sub-agents share the same cap.
type poolSizeKey struct{}

func WithPoolSize(env *Env, n int) *Env {
	child := env.Child()
	if n <= 0 {
		n = 1
	}
	child.Define("__pmap_pool_size__", Int(n))
	return child
}

func poolSize(env *Env) int {
	if v, ok := env.Lookup("__pmap_pool_size__"); ok {
		if i, ok := v.(Int); ok && i > 0 {
			return int(i)
		}
	}
	return 4
}

// PmapBuiltin builds the `pmap` builtin. It reaches the calling
// Evaluator and its pool size through the builtin's ev argument, and
// init below registers it in the static builtins table under "pmap".
func PmapBuiltin() BuiltinFn {
	return func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("pmap", "2", args)
		}
		fn := args[0]
		items, err := seqArg("pmap", args, 1)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return List{}, nil
		}
		n := poolSize(ev.Root)
		sem := make(chan struct{}, n)
		ctx, cancel := context.WithCancelCause(context.Background())
		defer cancel(nil)

		results := make([]Value, len(items))
		var wg sync.WaitGroup
		var mu sync.Mutex
		var firstErr error

		for i, it := range items {
			select {
			case <-ctx.Done():
			default:
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, item Value) {
				defer wg.Done()
				defer func() { <-sem }()
				select {
				case <-ctx.Done():
					return
				default:
				}
				v, err := ev.Apply(fn, []Value{item})
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
						cancel(err)
					}
					mu.Unlock()
					return
				}
				results[idx] = v
			}(i, it)
		}
		wg.Wait()

		if firstErr != nil {
			return nil, firstErr
		}
		for i, r := range results {
			if r == nil {
				results[i] = Nil{}
			}
		}
		return List{Items: results}, nil
	}
}

func init() {
	builtins["pmap"] = PmapBuiltin()
}
