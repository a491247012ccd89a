package shelf

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with underlying error",
			err:  &Error{Op: "Store.Load", Kind: KindNotFound, Err: ErrStoreNotFound},
			want: "shelf: Store.Load (not_found): store snapshot not found",
		},
		{
			name: "without underlying error",
			err:  &Error{Op: "Retriever.Retrieve", Kind: KindParse},
			want: "shelf: Retriever.Retrieve: parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := NewBudgetError("Guard.Complete", ErrBudgetExceeded)

	if !errors.Is(err, ErrBudgetExceeded) {
		t.Error("errors.Is should match the wrapped sentinel")
	}

	var shelfErr *Error
	if !errors.As(err, &shelfErr) {
		t.Fatal("errors.As should match *Error")
	}
	if shelfErr.Kind != KindBudget {
		t.Errorf("Kind = %q, want %q", shelfErr.Kind, KindBudget)
	}
}

func TestError_IsKindMatch(t *testing.T) {
	err := NewQuotaError("Client.Complete", ErrQuota)

	if !errors.Is(err, &Error{Kind: KindQuota}) {
		t.Error("should match target Error by kind alone")
	}
	if errors.Is(err, &Error{Kind: KindQuota, Op: "Other.Op"}) {
		t.Error("should not match when target op differs")
	}
}

func TestError_WithContext(t *testing.T) {
	base := NewNotFoundError("Collection.Get", ErrNodeNotFound)
	withCtx := base.WithContext(map[string]any{"node_id": "doc-1"})

	if base.Context != nil {
		t.Error("WithContext must not mutate the receiver")
	}
	if withCtx.Context["node_id"] != "doc-1" {
		t.Error("context not attached")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NewBudgetError("Guard.Complete", ErrBudgetExceeded), true},
		{NewQuotaError("Client.Complete", fmt.Errorf("wrapped: %w", ErrQuota)), true},
		{NewNetworkError("Client.Complete", errors.New("connection refused")), false},
		{ErrMalformedResponse, false},
	}

	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
