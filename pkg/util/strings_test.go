package util

import (
	"reflect"
	"testing"
)

func TestSplitCommaSeparated(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "r1", []string{"r1"}},
		{"multiple", "r1,r2,r3", []string{"r1", "r2", "r3"}},
		{"whitespace", " r1 , r2 ,r3 ", []string{"r1", "r2", "r3"}},
		{"empty elements dropped", "r1,,r2", []string{"r1", "r2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitCommaSeparated(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SplitCommaSeparated(%q) = %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
}
