package geometry

import "testing"

func TestDrawCountAdd(t *testing.T) {
	a := DrawCount{NumVertices: 100, MoreToDraw: false}
	b := DrawCount{NumVertices: 50.5, MoreToDraw: true}
	c := DrawCount{NumVertices: 0, MoreToDraw: false}

	sum := a.Add(b).Add(c)
	if sum.NumVertices != 150.5 {
		t.Errorf("sum = %f, want 150.5", sum.NumVertices)
	}
	if !sum.MoreToDraw {
		t.Error("MoreToDraw should be true when any input had it true")
	}

	// Combining order must not matter.
	other := c.Add(b).Add(a)
	if other != sum {
		t.Errorf("order-dependent combination: %+v vs %+v", other, sum)
	}
}

func TestDrawCountAddAllDone(t *testing.T) {
	a := DrawCount{NumVertices: 10}
	b := DrawCount{NumVertices: 20}
	if a.Add(b).MoreToDraw {
		t.Error("MoreToDraw should be false when no input had it true")
	}
}

func TestDrawCountAccumulate(t *testing.T) {
	total := DrawCount{}
	for i := 0; i < 4; i++ {
		total.Accumulate(DrawCount{NumVertices: 25, MoreToDraw: i == 1})
	}
	if total.NumVertices != 100 {
		t.Errorf("total = %f, want 100", total.NumVertices)
	}
	if !total.MoreToDraw {
		t.Error("MoreToDraw should stick once accumulated")
	}
}

func TestDrawTarget(t *testing.T) {
	cases := []struct {
		n       int
		quality float64
		want    int
	}{
		{1000, 0, 0},
		{1000, -1, 0},
		{1000, 0.5, 500},
		{1000, 1, 1000},
		{1000, 2.5, 1000},
		{0, 1, 0},
		{3, 0.5, 2}, // ceil
	}
	for _, c := range cases {
		if got := DrawTarget(c.n, c.quality); got != c.want {
			t.Errorf("DrawTarget(%d, %f) = %d, want %d", c.n, c.quality, got, c.want)
		}
	}

	// Monotonic in quality.
	prev := 0
	for q := 0.0; q <= 1.2; q += 0.01 {
		got := DrawTarget(12345, q)
		if got < prev {
			t.Fatalf("DrawTarget not monotonic at q=%f: %d < %d", q, got, prev)
		}
		prev = got
	}
}
