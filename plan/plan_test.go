package plan

import (
	"flag"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Plan
		wantErr bool
	}{
		{
			name: "default",
			in:   "1MB:10000,10KB:1000,10MB:100,100B:10",
			want: Default,
		},
		{
			name: "spaces-and-zero",
			in:   " a.bin:0 , b:3 ",
			want: Plan{{File: "a.bin", Repeats: 0}, {File: "b", Repeats: 3}},
		},
		{
			name: "colon-in-name",
			in:   "c:d:2",
			want: Plan{{File: "c:d", Repeats: 2}},
		},
		{name: "empty", in: "", wantErr: true},
		{name: "no-count", in: "1MB", wantErr: true},
		{name: "no-name", in: ":4", wantErr: true},
		{name: "negative", in: "1MB:-1", wantErr: true},
		{name: "not-a-number", in: "1MB:x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlan_Flag(t *testing.T) {
	p := append(Plan(nil), Default...)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&p, "plan", "")
	if err := fs.Parse([]string{"-plan", "100B:2,1MB:1"}); err != nil {
		t.Fatal(err)
	}
	if got := p.String(); got != "100B:2,1MB:1" {
		t.Errorf("String() = %q", got)
	}
	if err := fs.Parse([]string{"-plan", "bogus"}); err == nil {
		t.Error("Parse(bogus) succeeded")
	}
}
