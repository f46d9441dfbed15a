package mpesa

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "local format", input: "0712345678", want: "254712345678"},
		{name: "international plus", input: "+254712345678", want: "254712345678"},
		{name: "already canonical", input: "254712345678", want: "254712345678"},
		{name: "bare subscriber number", input: "712345678", want: "254712345678"},
		{name: "whitespace padded", input: " 0712 345 678 ", want: "254712345678"},
		{name: "too short", input: "07123", wantErr: true},
		{name: "too long", input: "2547123456789", wantErr: true},
		{name: "letters", input: "07abc45678", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
