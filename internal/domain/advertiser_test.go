package domain

import "testing"

func TestPrincipal_Authenticated(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{id: "1234", want: true},
		{id: "alice@example.com", want: true},
		{id: "", want: false},
		{id: "   ", want: false},
		{id: "a\tb", want: false},
		{id: "a\x00b", want: false},
		{id: "line\n", want: false},
	}

	for _, tt := range tests {
		if got := (Principal{ID: tt.id}).Authenticated(); got != tt.want {
			t.Errorf("Principal{ID: %q}.Authenticated() = %v, want %v", tt.id, got, tt.want)
		}
	}
}
