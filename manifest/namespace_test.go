package manifest

import "testing"

func TestToPascalCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"my-app", "MyApp"},
		{"models", "Models"},
		{"myApp", "MyApp"},
		{"http_client", "HttpClient"},
		{"already", "Already"},
		{"a-b-c", "ABC"},
	}
	for _, tt := range tests {
		if got := ToPascalCase(tt.in); got != tt.want {
			t.Errorf("ToPascalCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsReservedNamespace(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Error", true},
		{"TypeError", true},
		{"Promise", true},
		{"Math", true},
		{"console", true},
		{"Error.Extra", true},
		{"ThirdParty.Array", false},
		{"Collections", false},
	}
	for _, tt := range tests {
		if got := IsReservedNamespace(tt.name); got != tt.want {
			t.Errorf("IsReservedNamespace(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
