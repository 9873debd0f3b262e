package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"validation", NewValidationError("tokens", "empty"), ErrValidation},
		{"range", &RangeError{Field: "riskProfileCode", Value: "256", Width: 8}, ErrValidation},
		{"not found", &NotFoundError{What: "account"}, ErrNotFound},
		{"not found is validation", &NotFoundError{What: "account"}, ErrValidation},
		{"authorization", &AuthorizationError{Role: "governance", Reason: "no key"}, ErrAuthorization},
		{"timeout", &DivergenceTimeoutError{TxHash: "0x01"}, ErrDivergenceTimeout},
		{"remote", &RemoteCallError{Contract: "0x01", Method: "approveToken", Err: errors.New("boom")}, ErrRemoteCall},
	}

	for _, tc := range cases {
		wrapped := fmt.Errorf("unit x: %w", tc.err)
		if !errors.Is(wrapped, tc.kind) {
			t.Fatalf("%s: expected errors.Is(%v)", tc.name, tc.kind)
		}
	}
}

func TestRemoteCallErrorUnwrap(t *testing.T) {
	cause := errors.New("execution reverted")
	err := &RemoteCallError{Contract: "0xabc", Method: "setUnpaused", Args: "true", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	if err.Error() != "0xabc.setUnpaused(true): execution reverted" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
