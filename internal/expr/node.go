// Package expr builds lazy, immutable expression graphs over log-space
// factors. Operators construct symbolic nodes instead of computing; a
// Context materializes a graph bottom-up with memoization, and Optimize
// rewrites contraction chains into a cheaper evaluation order.
//
// Nodes are hash-consed by their Builder: structurally identical
// subexpressions are represented by the same *Node, so pointer identity is
// structural identity and memoized evaluation falls out of a pointer-keyed
// cache.
package expr

import (
	"fmt"
	"strings"

	"github.com/evince-ml/evince/internal/factor"
)

// Op selects a reduction operator.
type Op int

const (
	// LogSumExp is the semiring sum: eliminates measure variables.
	LogSumExp Op = iota
	// Sum is numeric summation: eliminates plate variables.
	Sum
)

func (op Op) String() string {
	switch op {
	case LogSumExp:
		return "logsumexp"
	case Sum:
		return "sum"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Kind discriminates node variants.
type Kind int

const (
	KindLeaf Kind = iota
	KindProduct
	KindReduce
	KindSlice
	KindRename
	KindScale
	KindIntegrate
)

// Node is one immutable vertex of a lazy expression graph. Construct nodes
// only through a Builder; zero-value Nodes are invalid.
type Node struct {
	kind   Kind
	leaf   *factor.Factor // KindLeaf
	args   []*Node        // children, meaning depends on kind
	op     Op             // KindReduce
	vars   factor.VarSet  // KindReduce, KindIntegrate
	from   string         // KindSlice (variable), KindRename (old name)
	to     string         // KindRename (new name)
	index  int            // KindSlice
	c      float64        // KindScale
	inputs factor.VarSet  // cached free variables
	key    string         // structural identity, used for interning
}

// Kind returns the node variant.
func (n *Node) Kind() Kind { return n.kind }

// Inputs returns the node's free variables.
func (n *Node) Inputs() factor.VarSet { return n.inputs }

// Leaf returns the wrapped factor of a leaf node, nil otherwise.
func (n *Node) Leaf() *factor.Factor {
	if n.kind == KindLeaf {
		return n.leaf
	}
	return nil
}

// Args returns the node's children.
func (n *Node) Args() []*Node { return n.args }

// Op returns the reduction operator of a reduce node.
func (n *Node) Op() Op { return n.op }

// ReduceVars returns the variables eliminated by a reduce or integrate node.
func (n *Node) ReduceVars() factor.VarSet { return n.vars }

// From returns the sliced variable (slice nodes) or the old name (rename nodes).
func (n *Node) From() string { return n.from }

// To returns the new name of a rename node.
func (n *Node) To() string { return n.to }

// Index returns the fixed index of a slice node.
func (n *Node) Index() int { return n.index }

func (n *Node) String() string {
	switch n.kind {
	case KindLeaf:
		return "leaf" + n.inputs.String()
	case KindProduct:
		parts := make([]string, len(n.args))
		for i, a := range n.args {
			parts[i] = a.String()
		}
		return "(" + strings.Join(parts, " ⊗ ") + ")"
	case KindReduce:
		return fmt.Sprintf("reduce[%v,%v](%v)", n.op, n.vars, n.args[0])
	case KindSlice:
		return fmt.Sprintf("slice[%s=%d](%v)", n.from, n.index, n.args[0])
	case KindRename:
		return fmt.Sprintf("rename[%s→%s](%v)", n.from, n.to, n.args[0])
	case KindScale:
		return fmt.Sprintf("scale[%g](%v)", n.c, n.args[0])
	case KindIntegrate:
		return fmt.Sprintf("integrate[%v](%v, %v)", n.vars, n.args[0], n.args[1])
	default:
		return "invalid"
	}
}

// Builder interns nodes of one expression graph. All nodes combined in one
// graph must come from the same Builder. Builders are not safe for
// concurrent use; each evaluation call owns its own.
type Builder struct {
	interned map[string]*Node
	leaves   map[*factor.Factor]*Node
	leafSeq  int
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		interned: make(map[string]*Node),
		leaves:   make(map[*factor.Factor]*Node),
	}
}

func (b *Builder) intern(n *Node) *Node {
	if existing, ok := b.interned[n.key]; ok {
		return existing
	}
	b.interned[n.key] = n
	return n
}

// Leaf wraps a factor. Leaves are interned by factor identity, not by
// structure: two distinct zero tables over the same variables (e.g. two
// probe factors) stay distinct nodes.
func (b *Builder) Leaf(f *factor.Factor) *Node {
	if n, ok := b.leaves[f]; ok {
		return n
	}
	b.leafSeq++
	n := &Node{
		kind:   KindLeaf,
		leaf:   f,
		inputs: f.Vars(),
		key:    fmt.Sprintf("leaf#%d", b.leafSeq),
	}
	b.leaves[f] = n
	b.interned[n.key] = n
	return n
}

// Scalar returns a leaf holding a single value. Scalars are interned by
// value, so repeated units collapse to one node.
func (b *Builder) Scalar(v float64) *Node {
	key := fmt.Sprintf("scalar(%g)", v)
	if n, ok := b.interned[key]; ok {
		return n
	}
	n := &Node{kind: KindLeaf, leaf: factor.Scalar(v), key: key}
	b.interned[key] = n
	return n
}

// Unit returns the semiring product unit (log-space zero scalar).
func (b *Builder) Unit() *Node {
	return b.Scalar(0)
}

// Product combines factors with the semiring product (log-space addition
// with broadcasting). Nested products are flattened; an empty product is
// the unit.
func (b *Builder) Product(args ...*Node) *Node {
	flat := make([]*Node, 0, len(args))
	for _, a := range args {
		if a.kind == KindProduct {
			flat = append(flat, a.args...)
			continue
		}
		flat = append(flat, a)
	}
	switch len(flat) {
	case 0:
		return b.Unit()
	case 1:
		return flat[0]
	}
	inputs := factor.NewVarSet()
	keys := make([]string, len(flat))
	for i, a := range flat {
		inputs = inputs.Union(a.inputs)
		keys[i] = a.key
	}
	n := &Node{
		kind:   KindProduct,
		args:   flat,
		inputs: inputs,
		key:    "prod(" + strings.Join(keys, ";") + ")",
	}
	return b.intern(n)
}

// Reduce eliminates vars from x with the given operator. Variables absent
// from x are dropped; an empty effective set returns x unchanged.
func (b *Builder) Reduce(op Op, x *Node, vars factor.VarSet) *Node {
	elim := x.inputs.Intersect(vars)
	if len(elim) == 0 {
		return x
	}
	n := &Node{
		kind:   KindReduce,
		args:   []*Node{x},
		op:     op,
		vars:   elim,
		inputs: x.inputs.Minus(elim),
		key:    fmt.Sprintf("reduce(%v;%s;%s)", op, elim.Key(), x.key),
	}
	return b.intern(n)
}

// Slice fixes the named variable of x at index idx.
func (b *Builder) Slice(x *Node, name string, idx int) *Node {
	v, ok := x.inputs.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("Slice: variable %q not among inputs %v", name, x.inputs))
	}
	n := &Node{
		kind:   KindSlice,
		args:   []*Node{x},
		from:   name,
		index:  idx,
		inputs: x.inputs.Minus(factor.NewVarSet(v)),
		key:    fmt.Sprintf("slice(%s=%d;%s)", name, idx, x.key),
	}
	return b.intern(n)
}

// Rename renames variable from to to in x. A no-op when from is absent.
func (b *Builder) Rename(x *Node, from, to string) *Node {
	v, ok := x.inputs.Lookup(from)
	if !ok {
		return x
	}
	if x.inputs.Contains(to) {
		panic(fmt.Sprintf("Rename: variable %q already among inputs %v", to, x.inputs))
	}
	n := &Node{
		kind:   KindRename,
		args:   []*Node{x},
		from:   from,
		to:     to,
		inputs: x.inputs.Minus(factor.NewVarSet(v)).Add(factor.Var{Name: to, Size: v.Size}),
		key:    fmt.Sprintf("rename(%s>%s;%s)", from, to, x.key),
	}
	return b.intern(n)
}

// Scale multiplies the log table of x by c. The identity scale returns x.
func (b *Builder) Scale(x *Node, c float64) *Node {
	if c == 1 {
		return x
	}
	n := &Node{
		kind:   KindScale,
		args:   []*Node{x},
		c:      c,
		inputs: x.inputs,
		key:    fmt.Sprintf("scale(%g;%s)", c, x.key),
	}
	return b.intern(n)
}

// Integrate forms the expectation Σ_vars exp(logProb)·f.
func (b *Builder) Integrate(logProb, f *Node, vars factor.VarSet) *Node {
	joint := logProb.inputs.Union(f.inputs)
	elim := joint.Intersect(vars)
	n := &Node{
		kind:   KindIntegrate,
		args:   []*Node{logProb, f},
		vars:   elim,
		inputs: joint.Minus(elim),
		key:    fmt.Sprintf("integrate(%s;%s;%s)", elim.Key(), logProb.key, f.key),
	}
	return b.intern(n)
}
