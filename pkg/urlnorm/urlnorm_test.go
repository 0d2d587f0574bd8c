package urlnorm

import "testing"

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://WWW.Example.com/Path",
		"http://example.com/",
		"https://example.com/path#frag",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestNormalizeStripsWWWAndCase(t *testing.T) {
	got := Normalize("HTTPS://WWW.Example.COM/Foo")
	want := "https://example.com/Foo"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestSameDomain(t *testing.T) {
	if !SameDomain("https://www.example.com/a", "http://example.com/b") {
		t.Error("expected same domain across www/scheme variance")
	}
	if SameDomain("https://example.com", "https://other.com") {
		t.Error("expected different domains")
	}
}

func TestRegistrableDomain(t *testing.T) {
	cases := map[string]string{
		"https://www.example.com/path": "example.com",
		"sub.example.co.uk":            "example.co.uk",
		"a.b.example.co.uk":            "example.co.uk",
		"example.com":                  "example.com",
	}
	for in, want := range cases {
		if got := RegistrableDomain(in); got != want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistrableDomainUnrecognizedSuffix(t *testing.T) {
	if got := RegistrableDomain("localhost"); got != "" {
		t.Errorf("RegistrableDomain(localhost) = %q, want empty", got)
	}
}

func TestWithinDomain(t *testing.T) {
	if !WithinDomain("https://blog.example.com/post", "example.com") {
		t.Error("expected subdomain to be within example.com")
	}
	if !WithinDomain("example.com", "example.com") {
		t.Error("expected the domain itself to be within itself")
	}
	if WithinDomain("https://evil-example.com/phish", "example.com") {
		t.Error("expected a lookalike host not to be within example.com")
	}
	if WithinDomain("https://other.com/page", "example.com") {
		t.Error("expected unrelated host to not be within example.com")
	}
}

func TestIsHTTP(t *testing.T) {
	if !IsHTTP("https://example.com") {
		t.Error("expected https to be http(s)")
	}
	if IsHTTP("ftp://example.com") {
		t.Error("expected ftp to not be http(s)")
	}
	if IsHTTP("not a url") {
		t.Error("expected invalid url to not be http(s)")
	}
}
