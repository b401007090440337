package coroutine

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := labelled(ErrStarted, "session", nil)
	if !errors.Is(err, ErrStarted) {
		t.Fatalf("expected %v to match ErrStarted", err)
	}
	if errors.Is(err, ErrDisposed) {
		t.Fatalf("expected %v not to match ErrDisposed", err)
	}

	wrapped := fmt.Errorf("publish: %w", err)
	if !errors.Is(wrapped, ErrStarted) {
		t.Fatal("expected wrapped error to match ErrStarted")
	}
}

func TestCodeOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: CodeSuccess},
		{name: "coded", err: NewError(-1, "cycle"), want: -1},
		{name: "wrapped", err: fmt.Errorf("ctx: %w", ErrTerminated), want: CodeThreadTerminated},
		{name: "foreign", err: errors.New("boom"), want: CodeUnknown},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("no slot")
	err := labelled(ErrCreateCycleThread, "publisher", cause)

	want := `code=1004: create cycle unit "publisher": no slot`
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
}
