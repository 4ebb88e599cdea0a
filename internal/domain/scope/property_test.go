package scope

import (
	"testing"

	"pgregory.net/rapid"
)

func nonBlank() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-zA-Z0-9][a-zA-Z0-9_-]{0,31}`)
}

func optional() *rapid.Generator[string] {
	return rapid.OneOf(rapid.Just(""), nonBlank())
}

func baggageGen() *rapid.Generator[map[string]string] {
	return rapid.MapOfN(nonBlank(), nonBlank(), 0, 8)
}

func newRapidContext(t *rapid.T) *Context {
	c, err := New(testIdentity)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// Initialize succeeds at most once, whatever the arguments.
func TestPropertyInitializeOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := newRapidContext(t)
		first := nonBlank().Draw(t, "first")
		if err := c.Initialize(first); err != nil {
			t.Fatalf("first Initialize: %v", err)
		}

		second := rapid.String().Draw(t, "second")
		err := c.Initialize(second,
			WithCausation(optional().Draw(t, "causation")),
			WithBaggage(baggageGen().Draw(t, "baggage")),
		)
		if err == nil || !IsLifecycle(err) {
			t.Fatalf("second Initialize(%q) = %v, want lifecycle error", second, err)
		}

		corr, _ := c.CorrelationID()
		if corr != first {
			t.Fatalf("correlation changed from %q to %q", first, corr)
		}
	})
}

// A disposed context reports disposal from every accessor, initialized or not.
func TestPropertyDisposalWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := newRapidContext(t)
		if rapid.Bool().Draw(t, "initialize") {
			if err := c.Initialize(nonBlank().Draw(t, "corr")); err != nil {
				t.Fatalf("Initialize: %v", err)
			}
		}
		c.MarkDisposed()

		for name, access := range accessors(c) {
			if err := access(); !isDisposed(err) {
				t.Fatalf("%s after dispose = %v, want ErrDisposed", name, err)
			}
		}
	})
}

// Correlation survives any number of child derivations; causation always
// points at the immediate parent's operation.
func TestPropertyChildChain(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		root := newRapidContext(t)
		corr := nonBlank().Draw(t, "corr")
		if err := root.Initialize(corr, WithTenant(optional().Draw(t, "tenant"))); err != nil {
			t.Fatalf("Initialize: %v", err)
		}

		depth := rapid.IntRange(1, 12).Draw(t, "depth")
		current := root
		seen := map[string]bool{}
		for i := 0; i < depth; i++ {
			parentOp, _ := current.OperationID()
			seen[parentOp] = true

			node := rapid.SampledFrom([]string{"", "ledger", "mailer"}).Draw(t, "node")
			child, err := current.CreateChildContext(node)
			if err != nil {
				t.Fatalf("CreateChildContext: %v", err)
			}

			childCorr, _ := child.CorrelationID()
			childCause, _ := child.CausationID()
			childOp, _ := child.OperationID()

			if childCorr != corr {
				t.Fatalf("depth %d: correlation %q, want %q", i, childCorr, corr)
			}
			if childCause != parentOp {
				t.Fatalf("depth %d: causation %q, want parent op %q", i, childCause, parentOp)
			}
			if seen[childOp] {
				t.Fatalf("depth %d: operation id %q reused", i, childOp)
			}
			current = child
		}
	})
}

// Mutating the caller's map after Initialize never leaks into the context.
func TestPropertyBaggageIsolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := newRapidContext(t)
		input := baggageGen().Draw(t, "baggage")
		expected := copyMap(input)

		if err := c.Initialize("corr", WithBaggage(input)); err != nil {
			t.Fatalf("Initialize: %v", err)
		}

		for k := range input {
			input[k] = "mutated"
		}
		input[nonBlank().Draw(t, "extra")] = "added"

		got, _ := c.Baggage()
		if len(got) != len(expected) {
			t.Fatalf("baggage size %d, want %d", len(got), len(expected))
		}
		for k, v := range expected {
			if got[k] != v {
				t.Fatalf("baggage[%q] = %q, want %q", k, got[k], v)
			}
		}
	})
}

func isDisposed(err error) bool {
	le, ok := err.(*LifecycleError)
	return ok && le.Err == ErrDisposed
}
