package main

import (
	"reflect"
	"testing"
)

func TestSplitTags(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"work", []string{"work"}},
		{"work,api", []string{"work", "api"}},
		{" work , api ", []string{"work", "api"}},
		{"work,,api,", []string{"work", "api"}},
	}
	for _, tt := range tests {
		if got := splitTags(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitTags(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
