package extract

import "testing"

func TestExtractPageInfo(t *testing.T) {
	html := `<html>
<head>
<title>My Page Title</title>
<meta name="description" content="This is a test description">
</head>
<body>Hello world</body>
</html>`

	info := ExtractPageInfo(html)
	if info.Title != "My Page Title" {
		t.Errorf("title = %q, want %q", info.Title, "My Page Title")
	}
	if info.Description != "This is a test description" {
		t.Errorf("description = %q, want %q", info.Description, "This is a test description")
	}
}

func TestExtractPageInfoNoMeta(t *testing.T) {
	html := `<html><head><title>Simple</title></head><body>text</body></html>`
	info := ExtractPageInfo(html)
	if info.Title != "Simple" {
		t.Errorf("title = %q, want %q", info.Title, "Simple")
	}
	if info.Description != "" {
		t.Errorf("description = %q, want empty", info.Description)
	}
}

func TestVisibleTextStripsChrome(t *testing.T) {
	html := `<html><body>
<header>Site Header</header>
<nav>Nav Links</nav>
<script>var x = 1;</script>
<style>.a{color:red}</style>
<main>Main Content Here</main>
<footer>Footer text</footer>
</body></html>`
	text := VisibleText(html)
	for _, bad := range []string{"Site Header", "Nav Links", "var x", "color:red", "Footer text"} {
		if contains(text, bad) {
			t.Errorf("VisibleText should not contain %q, got: %q", bad, text)
		}
	}
	if !contains(text, "Main Content Here") {
		t.Errorf("VisibleText should contain main content, got: %q", text)
	}
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestOutlinksDiscardsSameDomainAndNonHTTP(t *testing.T) {
	html := `<html><body>
<a href="/internal-page">internal</a>
<a href="https://example.com/other">same host different path</a>
<a href="https://external.com/page">External Link</a>
<a href="mailto:a@b.com">mail</a>
<a href="javascript:void(0)">js</a>
<a href="https://another.org/x">Another</a>
</body></html>`

	urls, notes, domains := Outlinks(html, "https://example.com/start", 50)
	if len(urls) != 2 {
		t.Fatalf("expected 2 outlinks, got %d: %v", len(urls), urls)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	if len(domains) != 2 || domains[0] != "another.org" || domains[1] != "external.com" {
		t.Errorf("expected sorted [another.org external.com], got %v", domains)
	}
}

func TestOutlinksRespectsMax(t *testing.T) {
	html := `<html><body>
<a href="https://a.com/1">a</a>
<a href="https://b.com/1">b</a>
<a href="https://c.com/1">c</a>
</body></html>`
	urls, _, _ := Outlinks(html, "https://base.com", 2)
	if len(urls) != 2 {
		t.Errorf("expected capped to 2 outlinks, got %d", len(urls))
	}
}

func TestFindKeywordCaseInsensitive(t *testing.T) {
	text := "The Annual Report was published in Q4."
	kw, snippet, ok := FindKeyword(text, []string{"annual report"})
	if !ok {
		t.Fatal("expected match")
	}
	if kw != "annual report" {
		t.Errorf("matched = %q", kw)
	}
	if !contains(snippet, "Annual Report") {
		t.Errorf("snippet missing match: %q", snippet)
	}
}

func TestFindKeywordNFKDFold(t *testing.T) {
	text := "Cliente: José García visited the café."
	_, _, ok := FindKeyword(text, []string{"jose garcia"})
	if !ok {
		t.Error("expected accent-insensitive match via NFKD folding")
	}
}

func TestFindKeywordNoMatch(t *testing.T) {
	_, _, ok := FindKeyword("nothing relevant here", []string{"zzzznotfound"})
	if ok {
		t.Error("expected no match")
	}
}

func TestDocumentExtensionBoost(t *testing.T) {
	if !DocumentExtensionBoost("https://example.com/reports/annual.pdf") {
		t.Error("expected pdf to boost")
	}
	if DocumentExtensionBoost("https://example.com/page.html") {
		t.Error("expected html to not boost")
	}
}

func TestKeywordInURLBoosts(t *testing.T) {
	n := KeywordInURLBoosts("https://example.com/investor-relations/annual-report", DefaultPriorityTerms)
	if n < 2 {
		t.Errorf("expected at least 2 boosts, got %d", n)
	}
}
