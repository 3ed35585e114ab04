package internal

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelsSurviveWrapping(t *testing.T) {
	sentinels := []error{
		ErrConnectionFailed,
		ErrAlreadyClosed,
		ErrInvalidURL,
		ErrProtocol,
		ErrIO,
		ErrAbnormalClosure,
	}
	for _, s := range sentinels {
		wrapped := fmt.Errorf("%w: detail", s)
		if !errors.Is(wrapped, s) {
			t.Fatalf("errors.Is failed for wrapped %v", s)
		}
	}
}

func TestCloseErrorText(t *testing.T) {
	err := CloseError{Code: StatusGoingAway, Reason: "maintenance"}
	want := `wsbridge: connection closed: status = 1001, reason = "maintenance"`
	if err.Error() != want {
		t.Fatalf("Error()=%q want %q", err.Error(), want)
	}
	if f := err.Frame(); f.Code != StatusGoingAway || f.Reason != "maintenance" {
		t.Fatalf("Frame()=%#v", f)
	}
}

func TestIsCloseError(t *testing.T) {
	err := fmt.Errorf("recv: %w", CloseError{Code: 4001, Reason: "app"})

	if !IsCloseError(err) {
		t.Fatalf("expected any-code match")
	}
	if !IsCloseError(err, StatusNormalClosure, 4001) {
		t.Fatalf("expected code-list match")
	}
	if IsCloseError(err, StatusNormalClosure) {
		t.Fatalf("expected no match for 1000")
	}
	if IsCloseError(errors.New("plain"), 4001) {
		t.Fatalf("expected no match for a non-close error")
	}
}

func TestCloseStatus(t *testing.T) {
	if got := CloseStatus(CloseError{Code: 4001}); got != 4001 {
		t.Fatalf("CloseStatus(CloseError)=%d want 4001", got)
	}
	wrapped := fmt.Errorf("%w: socket dropped", ErrAbnormalClosure)
	if got := CloseStatus(wrapped); got != StatusAbnormalClosure {
		t.Fatalf("CloseStatus(abnormal)=%d want %d", got, StatusAbnormalClosure)
	}
	if got := CloseStatus(errors.New("plain")); got != 0 {
		t.Fatalf("CloseStatus(plain)=%d want 0", got)
	}
}
