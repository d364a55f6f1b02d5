package apperr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "plain", err: io.EOF, want: Internal},
		{name: "validation", err: New(Validation, "bad"), want: Validation},
		{name: "wrapped by fmt", err: fmt.Errorf("ctx: %w", New(NotFound, "missing")), want: NotFound},
		{name: "wrap", err: Wrap(Dependency, "embed", io.EOF), want: Dependency},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	err := Wrap(Dependency, "vector store", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected cause to be reachable")
	}
	if Wrap(Dependency, "x", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

func TestMessageHidesDependencyCause(t *testing.T) {
	t.Parallel()

	err := Wrap(Dependency, "embedding failed", errors.New("dial tcp 10.0.0.1:11434: refused"))
	if got := Message(err); got != "embedding failed" {
		t.Fatalf("unexpected message %q", got)
	}

	err = Newf(Validation, "field %q is required", "name")
	if got := Message(err); got != `field "name" is required` {
		t.Fatalf("unexpected message %q", got)
	}

	if got := Message(io.EOF); got != "internal error" {
		t.Fatalf("unexpected message %q", got)
	}
}
