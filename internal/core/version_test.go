package core

import "testing"

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1.2.5", "v1.2.5"},
		{"v1.2.5", "v1.2.5"},
		{"", ""},
		{"devel", "vdevel"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeVersion(tt.input); got != tt.want {
				t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseHostVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "1.2.5", want: "v1.2.5"},
		{input: " v1.3.0 ", want: "v1.3.0"},
		{input: "devel-ad721b3", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHostVersion(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseHostVersion(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHostVersion(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseHostVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "tagged release with v prefix", input: "v1.12.0", want: "1.12.0"},
		{name: "tagged release without v prefix", input: "1.12.0", want: "1.12.0"},
		{name: "devel with sha", input: "devel-ad721b3", want: "devel-ad721b3"},
		{name: "empty string", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatVersion(tt.input)
			if got != tt.want {
				t.Errorf("FormatVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsPseudoVersion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "pseudo-version without tag", input: "v0.0.0-20260217105831-82903d1d8810", want: true},
		{name: "pseudo-version with dirty", input: "v0.0.0-20260217105831-82903d1d8810+dirty", want: true},
		{name: "tagged release", input: "v1.12.0", want: false},
		{name: "prerelease version", input: "v2.0.0-rc1", want: false},
		{name: "empty string", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPseudoVersion(tt.input)
			if got != tt.want {
				t.Errorf("isPseudoVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildVersionNotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("expected a non-empty build version")
	}
}
