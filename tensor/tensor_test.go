package tensor

import "testing"

func TestNewShape(t *testing.T) {
	t1 := New(2, 3)
	if len(t1.Data) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(t1.Data))
	}
	if len(t1.Shape) != 2 || t1.Shape[0] != 2 || t1.Shape[1] != 3 {
		t.Fatalf("unexpected shape: %v", t1.Shape)
	}
}

func TestSameShape(t *testing.T) {
	if !SameShape(New(2, 3), New(2, 3)) {
		t.Fatal("identical shapes should match")
	}
	if SameShape(New(2, 3), New(3, 2)) {
		t.Fatal("transposed shapes should not match")
	}
	if SameShape(New(6), New(2, 3)) {
		t.Fatal("different ranks should not match")
	}
}

func TestReLU(t *testing.T) {
	a := &Tensor{Data: []float64{-1, 0, 3}, Shape: []int{3}}
	c := ReLU(a)
	want := []float64{0, 0, 3}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, c.Data[i], want[i])
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := NewWithData([]float64{1, 2, 3})
	b := a.Clone()
	b.Data[0] = 99
	if a.Data[0] != 1 {
		t.Fatalf("clone shares storage with original")
	}
}

func TestReshape(t *testing.T) {
	a := New(2, 6)
	r, err := a.Reshape(3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if r.Shape[0] != 3 || r.Shape[1] != 4 {
		t.Fatalf("unexpected shape: %v", r.Shape)
	}
	// Reshape is a view: writes must be visible through both.
	r.Data[0] = 7
	if a.Data[0] != 7 {
		t.Fatal("reshape should share storage")
	}
	if _, err := a.Reshape(5, 5); err == nil {
		t.Fatal("expected element count error")
	}
}

func TestAtSet(t *testing.T) {
	a := New(2, 3, 4, 5)
	a.Set(3.5, 1, 2, 3, 4)
	if got := a.At(1, 2, 3, 4); got != 3.5 {
		t.Fatalf("got %f, want 3.5", got)
	}
	if a.Data[len(a.Data)-1] != 3.5 {
		t.Fatal("Set did not write row-major last element")
	}
}

func TestAtPanicsOutOfBounds(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-bounds index")
		}
	}()
	a := New(2, 2)
	a.At(2, 0)
}
