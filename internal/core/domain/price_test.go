package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"2.5", "2.50", true},
		{" 10 ", "10.00", true},
		{"0.005", "0.01", true},
		{"3.14159", "3.14", true},
		{"0", "", false},
		{"0.00", "", false},
		{"0.004", "", false},
		{"-1", "", false},
		{"", "", false},
		{"abc", "", false},
	}

	for _, tt := range tests {
		got, ok := ParsePrice(tt.raw)
		if ok != tt.ok {
			t.Errorf("ParsePrice(%q): expected ok=%v, got %v", tt.raw, tt.ok, ok)
			continue
		}
		if ok && FormatPrice(got) != tt.want {
			t.Errorf("ParsePrice(%q): expected %s, got %s", tt.raw, tt.want, FormatPrice(got))
		}
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("save: %w", WrapError(KindWrite, "write failed", cause))

	if !errors.Is(err, ErrWrite) {
		t.Error("expected write kind")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("did not expect validation kind")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
	if KindOf(err) != KindWrite {
		t.Errorf("expected %s, got %s", KindWrite, KindOf(err))
	}
	if KindOf(cause) != "" {
		t.Error("expected empty kind for plain error")
	}
}

func TestCollectionPath(t *testing.T) {
	if got := CollectionPath("shop-1"); got != "/artifacts/shop-1/public/data/my_shop_stock" {
		t.Errorf("unexpected path %s", got)
	}
}
