package ratelimit

import "testing"

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want string
	}{
		{"https://www.example.com/page", "example.com"},
		{"https://sub.blog.example.co.uk/post", "example.co.uk"},
		{"http://EXAMPLE.COM", "example.com"},
		{"http://localhost:8080/x", "localhost"},
		{"http://127.0.0.1/x", "127.0.0.1"},
	}
	for _, tc := range cases {
		got, err := RegistrableDomain(tc.url)
		if err != nil {
			t.Fatalf("RegistrableDomain(%q) error = %v", tc.url, err)
		}
		if got != tc.want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestRegistrableDomain_NoHost(t *testing.T) {
	t.Parallel()

	if _, err := RegistrableDomain("not-a-url"); err == nil {
		t.Fatal("expected error for url with no host")
	}
}

func TestRegistrableDomain_InvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := RegistrableDomain("http://[::1"); err == nil {
		t.Fatal("expected parse error for malformed url")
	}
}
