package procedure

import (
	"reflect"
	"testing"
)

type isEven struct {
	N int `json:"n"`
}

func (p isEven) Request() any        { return p }
func (isEven) Reduce(a, b bool) bool { return a && b }

type echoArgs struct{ Text string }

func (a *echoArgs) Request() any { return map[string]*echoArgs{"Echo": a} }

func fold[R any](p Procedure[R], rs ...R) R {
	acc := rs[0]
	for _, r := range rs[1:] {
		acc = p.Reduce(acc, r)
	}
	return acc
}

func TestProcedureIsItsOwnRequest(t *testing.T) {
	var p Procedure[bool] = isEven{N: 4}
	if p.Request() != (isEven{N: 4}) {
		t.Fatalf("unexpected request %v", p.Request())
	}
	if fold(p, true, true, false) {
		t.Fatal("AND over a false response must be false")
	}
}

func TestWith(t *testing.T) {
	args := &echoArgs{Text: "hi"}
	p := With(args, Concat[string])

	req, ok := p.Request().(map[string]*echoArgs)
	if !ok || req["Echo"] != args {
		t.Fatalf("With must use the generated request, got %#v", p.Request())
	}

	got := fold(p, []string{"a"}, []string{"b", "c"}, nil)
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("got %v", got)
	}

	plain := With[int](42, Sum[int])
	if plain.Request() != 42 {
		t.Fatalf("plain request must pass through, got %v", plain.Request())
	}
	if fold(plain, 1, 2, 3) != 6 {
		t.Fatal("Sum fold")
	}
}

func TestPointToPointPanics(t *testing.T) {
	p := With[int]("only-once", nil)
	defer func() {
		if recover() == nil {
			t.Fatal("expect Reduce on a point-to-point procedure to panic")
		}
	}()
	p.Reduce(1, 2)
}

func TestReducers(t *testing.T) {
	if !Any(false, true) || Any(false, false) {
		t.Fatal("Any")
	}
	if All(true, false) || !All(true, true) {
		t.Fatal("All")
	}
	if First(1, 2) != 1 || Last(1, 2) != 2 {
		t.Fatal("First/Last")
	}
	if Sum(1.5, 2.25) != 3.75 {
		t.Fatal("Sum")
	}

	a := make([]int, 1, 8)
	out := Concat(a, []int{2})
	out[0] = 9
	if a[0] != 0 {
		t.Fatal("Concat must not alias its first argument")
	}
}
