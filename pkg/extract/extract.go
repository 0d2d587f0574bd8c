// Package extract provides HTML content extraction for the streaming
// search engine and the differ: visible-text stripping, outlink
// enumeration with anchor text, and accent-insensitive keyword scanning
// with contextual snippets (§4.8 steps 3–4, §4.10).
package extract

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/zadorian/SEARCH-ENGINEER-sub001/pkg/urlnorm"
)

// stripSelectors are removed before visible-text extraction, per §4.10
// "strip script/style/nav/footer/header".
var stripSelectors = []string{"script", "style", "nav", "footer", "header"}

// VisibleText parses html and returns its stripped visible text, with
// script/style/nav/footer/header content removed. Malformed HTML yields a
// best-effort result rather than an error — extraction never aborts a
// snapshot fetch over unparsable markup (§7 "Parsing failure ... skip the
// offending record").
func VisibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	for _, sel := range stripSelectors {
		doc.Find(sel).Remove()
	}
	text := doc.Text()
	return collapseWhitespace(text)
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// PageInfo is the title/meta-description pair extracted from raw HTML.
type PageInfo struct {
	Title       string
	Description string
}

// ExtractPageInfo pulls <title> and the meta description from raw HTML.
func ExtractPageInfo(html string) PageInfo {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageInfo{}
	}
	info := PageInfo{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	doc.Find(`meta[name="description"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if c, ok := s.Attr("content"); ok {
			info.Description = strings.TrimSpace(c)
			return false
		}
		return true
	})
	return info
}

// Outlinks parses anchors, resolves them against baseURL, discards
// same-domain and non-http(s) links, dedups, and caps at maxOutlinks
// (§4.8 step 4). It also returns the anchor-text-paired "notes" list and
// the sorted unique set of outlink domains.
type OutlinkNote struct {
	URL        string
	AnchorText string
}

func Outlinks(html, baseURL string, maxOutlinks int) (urls []string, notes []OutlinkNote, domains []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, nil, nil
	}
	baseHost := urlnorm.Host(baseURL)

	seen := make(map[string]bool)
	domainSet := make(map[string]bool)

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if maxOutlinks > 0 && len(urls) >= maxOutlinks {
			return false
		}
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return true
		}
		host := urlnorm.Host(resolved.String())
		if host == "" || host == baseHost {
			return true
		}
		normalized := urlnorm.Normalize(resolved.String())
		if seen[normalized] {
			return true
		}
		seen[normalized] = true
		urls = append(urls, resolved.String())
		notes = append(notes, OutlinkNote{URL: resolved.String(), AnchorText: strings.TrimSpace(s.Text())})
		domainSet[host] = true
		return true
	})

	domains = make([]string, 0, len(domainSet))
	for d := range domainSet {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return urls, notes, domains
}

// foldNFKD applies Unicode NFKD normalization and strips combining marks,
// yielding an accent-insensitive comparison form (§4.8 step 3 "NFKD-folded
// comparison to handle accents").
func foldNFKD(s string) string {
	s = norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isCombiningMark(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func isCombiningMark(r rune) bool {
	return r >= 0x0300 && r <= 0x036F
}

// FindKeyword scans text for any of keywords, case-insensitively, falling
// back to an NFKD-folded comparison to catch accent variants. It returns
// the first matching keyword, whether it matched, and a ±150-char
// contextual snippet around the match (§4.8 step 3).
func FindKeyword(text string, keywords []string) (matched string, snippet string, ok bool) {
	lowerText := strings.ToLower(text)
	foldedText := foldNFKD(text)

	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		lowerKw := strings.ToLower(kw)
		if idx := strings.Index(lowerText, lowerKw); idx >= 0 {
			return kw, snippetAround(text, idx, len(kw)), true
		}
		foldedKw := foldNFKD(kw)
		if idx := strings.Index(foldedText, foldedKw); idx >= 0 {
			// Folded index maps approximately onto the original text;
			// rebuild a best-effort window from the same relative offset.
			pos := idx
			if pos > len(text) {
				pos = len(text)
			}
			return kw, snippetAround(text, pos, len(foldedKw)), true
		}
	}
	return "", "", false
}

const snippetRadius = 150

func snippetAround(text string, idx, matchLen int) string {
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	if start > len(text) {
		start = len(text)
	}
	if start > end {
		start = end
	}
	return strings.TrimSpace(text[start:end])
}

// DocumentExtensionBoost reports whether url's path ends in a document
// extension commonly associated with reports/filings (§4.8 step 2).
func DocumentExtensionBoost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// KeywordInURLBoosts counts how many of the given terms appear,
// case-insensitively, anywhere in the URL string (§4.8 step 2).
func KeywordInURLBoosts(rawURL string, terms []string) int {
	lower := strings.ToLower(rawURL)
	n := 0
	for _, t := range terms {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			n++
		}
	}
	return n
}

// DefaultPriorityTerms is the default keyword-in-URL boost list (§4.8).
var DefaultPriorityTerms = []string{
	"report", "annual", "financial", "investor", "investors",
	"investor-relations", "ir", "10-k", "10q", "20-f", "prospectus",
	"team", "leadership", "management", "board", "about", "company",
	"press", "news", "blog",
}

// DescribeMatch is a small formatting helper used by the search engine's
// UI-facing progress messages.
func DescribeMatch(keyword string, rawURL string) string {
	return fmt.Sprintf("matched %q in %s", keyword, rawURL)
}
