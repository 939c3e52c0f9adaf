package factor

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func assertClose(t *testing.T, want, got float64, msg string) {
	t.Helper()
	if math.Abs(want-got) > 1e-12 {
		t.Errorf("%s: want %v, got %v", msg, want, got)
	}
}

func TestVarSet_CanonicalOrder(t *testing.T) {
	a := NewVarSet(Var{"z", 3}, Var{"a", 2}, Var{"m", 4})
	b := NewVarSet(Var{"m", 4}, Var{"a", 2}, Var{"z", 3})

	if !a.Equal(b) {
		t.Fatalf("sets differ: %v vs %v", a, b)
	}
	if a.Key() != "a:2,m:4,z:3" {
		t.Errorf("unexpected key %q", a.Key())
	}
}

func TestVarSet_SetOps(t *testing.T) {
	a := NewVarSet(Var{"x", 2}, Var{"y", 3})
	b := NewVarSet(Var{"y", 3}, Var{"z", 4})

	if diff := cmp.Diff(NewVarSet(Var{"x", 2}, Var{"y", 3}, Var{"z", 4}), a.Union(b)); diff != "" {
		t.Errorf("Union mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(NewVarSet(Var{"y", 3}), a.Intersect(b)); diff != "" {
		t.Errorf("Intersect mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(NewVarSet(Var{"x", 2}), a.Minus(b)); diff != "" {
		t.Errorf("Minus mismatch (-want +got):\n%s", diff)
	}
	if !a.Intersects(b) || a.Intersects(NewVarSet(Var{"w", 2})) {
		t.Error("Intersects misreported")
	}
}

func TestVarSet_ConflictingSizesPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on conflicting sizes")
		}
	}()
	NewVarSet(Var{"x", 2}, Var{"x", 3})
}

func TestNew_SizeMismatch(t *testing.T) {
	_, err := New(NewVarSet(Var{"x", 2}), []float64{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for wrong cell count")
	}
}

func TestAdd_Broadcast(t *testing.T) {
	x := Var{"x", 2}
	y := Var{"y", 3}
	a, _ := New(NewVarSet(x), []float64{1, 2})
	b, _ := New(NewVarSet(y), []float64{10, 20, 30})

	c := Add(a, b)
	if !c.Vars().Equal(NewVarSet(x, y)) {
		t.Fatalf("unexpected result vars %v", c.Vars())
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			assertClose(t, a.At(i)+b.At(j), c.At(i, j), "Add cell")
		}
	}
}

func TestAdd_SharedVariable(t *testing.T) {
	x := Var{"x", 2}
	y := Var{"y", 2}
	a := Tabulate(NewVarSet(x, y), func(idx []int) float64 { return float64(idx[0]*10 + idx[1]) })
	b := Tabulate(NewVarSet(y), func(idx []int) float64 { return float64(idx[0]) })

	c := Add(a, b)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assertClose(t, a.At(i, j)+float64(j), c.At(i, j), "shared-var Add")
		}
	}
}

func TestLogAddExp(t *testing.T) {
	a := Scalar(math.Log(0.25))
	b := Scalar(math.Log(0.75))
	assertClose(t, 0, LogAddExp(a, b).Item(), "logaddexp of complementary masses")

	neg := Scalar(math.Inf(-1))
	assertClose(t, math.Log(0.25), LogAddExp(a, neg).Item(), "logaddexp with semiring zero")
}

func TestReduceLogSumExp(t *testing.T) {
	z := Var{"z", 3}
	n := Var{"n", 2}
	f := Tabulate(NewVarSet(n, z), func(idx []int) float64 {
		return float64(idx[0]) - float64(idx[1])
	})

	r := f.ReduceLogSumExp(NewVarSet(z))
	if !r.Vars().Equal(NewVarSet(n)) {
		t.Fatalf("unexpected vars %v", r.Vars())
	}
	for i := 0; i < 2; i++ {
		want := math.Log(math.Exp(f.At(i, 0)) + math.Exp(f.At(i, 1)) + math.Exp(f.At(i, 2)))
		assertClose(t, want, r.At(i), "lse over z")
	}

	// Reducing everything yields a scalar.
	s := f.ReduceLogSumExp(f.Vars())
	if !s.IsScalar() {
		t.Fatalf("expected scalar, got %v", s.Vars())
	}
}

func TestReduceSum(t *testing.T) {
	n := Var{"n", 4}
	f := Tabulate(NewVarSet(n), func(idx []int) float64 { return float64(idx[0]) })
	assertClose(t, 6, f.ReduceSum(NewVarSet(n)).Item(), "plate sum")
}

func TestSliceRenameScatter(t *testing.T) {
	tv := Var{"t", 3}
	x := Var{"x", 2}
	f := Tabulate(NewVarSet(tv, x), func(idx []int) float64 {
		return float64(idx[0]*2 + idx[1])
	})

	s := f.Slice("t", 1)
	if !s.Vars().Equal(NewVarSet(x)) {
		t.Fatalf("unexpected slice vars %v", s.Vars())
	}
	assertClose(t, f.At(1, 0), s.At(0), "slice cell 0")
	assertClose(t, f.At(1, 1), s.At(1), "slice cell 1")

	r := s.Rename("x", "x_prev")
	if !r.Vars().Equal(NewVarSet(Var{"x_prev", 2})) {
		t.Fatalf("unexpected rename vars %v", r.Vars())
	}
	assertClose(t, s.At(1), r.At(1), "rename preserves cells")
	// Renaming an absent variable is a no-op.
	if s.Rename("nope", "other") != s {
		t.Error("rename of absent variable should return the factor unchanged")
	}

	sc := s.Scatter(tv, 1)
	if !sc.Vars().Equal(f.Vars()) {
		t.Fatalf("unexpected scatter vars %v", sc.Vars())
	}
	assertClose(t, s.At(0), sc.At(1, 0), "scatter slab")
	if !math.IsInf(sc.At(0, 0), -1) || !math.IsInf(sc.At(2, 1), -1) {
		t.Error("scatter should fill other slabs with -Inf")
	}
}

func TestExpandTo(t *testing.T) {
	x := Var{"x", 2}
	n := Var{"n", 3}
	f, _ := New(NewVarSet(x), []float64{1, 2})

	e := f.ExpandTo(NewVarSet(x, n))
	for j := 0; j < 3; j++ {
		assertClose(t, 1, e.At(j, 0), "expanded cell") // canonical order: n before x
		assertClose(t, 2, e.At(j, 1), "expanded cell")
	}
}

func TestIntegrate_Expectation(t *testing.T) {
	z := Var{"z", 2}
	logProb, _ := New(NewVarSet(z), []float64{math.Log(0.3), math.Log(0.7)})
	cost, _ := New(NewVarSet(z), []float64{-1, 4})

	got := Integrate(logProb, cost, NewVarSet(z))
	assertClose(t, 0.3*(-1)+0.7*4, got.Item(), "E_q[f]")

	// Empty reduction set: pointwise weighting only.
	pw := Integrate(logProb, cost, NewVarSet())
	assertClose(t, 0.3*(-1), pw.At(0), "pointwise weight")
	assertClose(t, 0.7*4, pw.At(1), "pointwise weight")
}

func TestIntegrate_KeepsPlates(t *testing.T) {
	z := Var{"z", 2}
	n := Var{"n", 2}
	logProb, _ := New(NewVarSet(z), []float64{math.Log(0.5), math.Log(0.5)})
	cost := Tabulate(NewVarSet(n, z), func(idx []int) float64 {
		return float64(idx[0]*10 + idx[1])
	})

	got := Integrate(logProb, cost, NewVarSet(z))
	if !got.Vars().Equal(NewVarSet(n)) {
		t.Fatalf("unexpected vars %v", got.Vars())
	}
	assertClose(t, 0.5*0+0.5*1, got.At(0), "plate row 0")
	assertClose(t, 0.5*10+0.5*11, got.At(1), "plate row 1")
}

func TestDegeneracyPropagates(t *testing.T) {
	z := Var{"z", 2}
	f, _ := New(NewVarSet(z), []float64{math.Inf(-1), math.Inf(-1)})
	r := f.ReduceLogSumExp(NewVarSet(z))
	if !math.IsInf(r.Item(), -1) {
		t.Errorf("expected -Inf, got %v", r.Item())
	}
}
