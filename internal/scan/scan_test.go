package scan

import (
	"slices"
	"strings"
	"testing"
)

func TestBlacklist_ScanWords(t *testing.T) {
	t.Parallel()

	bl := New([]string{"badword1", "forbidden"}, nil)

	tests := []struct {
		name string
		text string
		want []Match
	}{
		{
			name: "clean text",
			text: "nothing objectionable here at all",
			want: nil,
		},
		{
			name: "single hit",
			text: "this file mentions badword1 in passing",
			want: []Match{{Term: "badword1", Category: MatchWord}},
		},
		{
			name: "case insensitive",
			text: "BadWord1 shouts",
			want: []Match{{Term: "badword1", Category: MatchWord}},
		},
		{
			name: "substring is not a token match",
			text: "notbadword1suffix runs together",
			want: nil,
		},
		{
			name: "duplicate hits reported once",
			text: "badword1 and badword1 again, plus forbidden",
			want: []Match{
				{Term: "badword1", Category: MatchWord},
				{Term: "forbidden", Category: MatchWord},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := bl.Scan(tt.text)
			if !slices.Equal(got.Matches, tt.want) {
				t.Errorf("Scan() matches = %v, want %v", got.Matches, tt.want)
			}
			if got.Pass() != (len(tt.want) == 0) {
				t.Errorf("Scan() pass = %v, want %v", got.Pass(), len(tt.want) == 0)
			}
		})
	}
}

func TestBlacklist_ScanPhones(t *testing.T) {
	t.Parallel()

	bl := New(nil, []string{"1234567890", "+86 138 0013 8000"})

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "dashed number normalizes to blacklist entry",
			text: "call 123-456-7890 now",
			want: "1234567890",
		},
		{
			name: "dotted and spaced",
			text: "123.456 7890",
			want: "1234567890",
		},
		{
			name: "parenthesized area code",
			text: "(123) 456-7890",
			want: "1234567890",
		},
		{
			name: "country code stripped from candidate",
			text: "dial +1-123-456-7890",
			want: "1234567890",
		},
		{
			name: "international dialing form",
			text: "001 123 456 7890",
			want: "1234567890",
		},
		{
			name: "blacklisted number stored with country code",
			text: "138 0013 8000",
			want: "8613800138000",
		},
		{
			name: "full-width digits",
			text: "１２３４５６７８９０",
			want: "1234567890",
		},
		{
			name: "different number passes",
			text: "call 098-765-4321",
			want: "",
		},
		{
			name: "short digit runs ignored",
			text: "version 1.2.3 built 2024",
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := bl.Scan(tt.text)
			if tt.want == "" {
				if !got.Pass() {
					t.Errorf("Scan() matched %v, want pass", got.Matches)
				}
				return
			}
			if len(got.Matches) != 1 {
				t.Fatalf("Scan() matches = %v, want one phone match", got.Matches)
			}
			m := got.Matches[0]
			if m.Category != MatchPhone || m.Term != tt.want {
				t.Errorf("Scan() match = %+v, want phone %q", m, tt.want)
			}
		})
	}
}

func TestBlacklist_ScanHanTerms(t *testing.T) {
	t.Parallel()

	bl := New([]string{"转账"}, nil)

	got := bl.Scan("请立即转账到指定账户")
	if got.Pass() {
		t.Fatal("expected Han term to match inside unsegmented text")
	}
	if got.Matches[0].Term != "转账" {
		t.Errorf("matched term = %q, want %q", got.Matches[0].Term, "转账")
	}

	// A clean Han sentence must not match.
	if res := bl.Scan("今天天气很好"); !res.Pass() {
		t.Errorf("clean text matched: %v", res.Matches)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	input := "badword1\n\n# comment line\n  forbidden  \n"
	terms, err := Load(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"badword1", "forbidden"}
	if !slices.Equal(terms, want) {
		t.Errorf("Load() = %v, want %v", terms, want)
	}
}

func TestBlacklist_Empty(t *testing.T) {
	t.Parallel()

	if !New(nil, nil).Empty() {
		t.Error("empty blacklist not reported as empty")
	}
	if New([]string{"x"}, nil).Empty() {
		t.Error("word blacklist reported as empty")
	}
}
