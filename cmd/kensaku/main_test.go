package main

import "testing"

func TestJoinQuery(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "single", args: []string{"hello"}, want: "hello"},
		{name: "multi", args: []string{"machine", "learning"}, want: "machine learning"},
		{name: "empty", args: nil, want: ""},
		{name: "spaces", args: []string{" a ", "b"}, want: "a  b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinQuery(tt.args); got != tt.want {
				t.Errorf("joinQuery(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "flags already first",
			args: []string{"-limit", "5", "query"},
			want: []string{"-limit", "5", "query"},
		},
		{
			name: "flags after query",
			args: []string{"some", "query", "-limit", "5"},
			want: []string{"-limit", "5", "some", "query"},
		},
		{
			name: "no flags",
			args: []string{"just", "a", "query"},
			want: []string{"just", "a", "query"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderArgs(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}
