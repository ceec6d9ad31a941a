package classify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/onnwee/gpfinder/internal/validate"
)

// DefaultUserAgent is sent when the scanner fetches a practice website.
const DefaultUserAgent = "Mozilla/5.0 (compatible; gpfinder/1.0)"

// maxPageBytes caps how much of a practice homepage is parsed.
const maxPageBytes = 2 << 20

// Keyword sets searched for in page text. Matching is case-insensitive on
// whole phrases.
var (
	DefaultPrivateKeywords = []string{
		"private gp",
		"private practice",
		"private clinic",
		"private consultation",
		"self-pay",
		"self pay",
		"consultation fee",
		"price list",
		"our fees",
		"pay as you go",
		"membership plan",
		"health insurance",
	}
	DefaultNHSKeywords = []string{
		"nhs",
		"nhs app",
		"nhs number",
		"register as a patient",
		"new patient registration",
		"practice boundary",
		"catchment area",
		"integrated care board",
		"repeat prescriptions",
		"patient participation group",
	}
)

// ContentScanner is a WebsiteClassifier that fetches the practice homepage
// itself and counts private and NHS keyword phrases in the visible text.
type ContentScanner struct {
	httpClient      HTTPClient
	logger          *slog.Logger
	userAgent       string
	privateKeywords []string
	nhsKeywords     []string
}

// NewContentScanner creates a ContentScanner using the default keyword sets.
func NewContentScanner(httpClient HTTPClient, logger *slog.Logger) *ContentScanner {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentScanner{
		httpClient:      httpClient,
		logger:          logger,
		userAgent:       DefaultUserAgent,
		privateKeywords: DefaultPrivateKeywords,
		nhsKeywords:     DefaultNHSKeywords,
	}
}

// ClassifyWebsite implements WebsiteClassifier.
func (s *ContentScanner) ClassifyWebsite(ctx context.Context, websiteURL string) (*Verdict, error) {
	target, err := validate.WebsiteURL(websiteURL)
	if err != nil {
		return nil, &Error{URL: websiteURL, Message: "website URL rejected", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &Error{URL: websiteURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: websiteURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Debug("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: websiteURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	text, err := ExtractText(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &Error{URL: websiteURL, Message: "failed to parse HTML", Cause: err}
	}

	return s.Score(text), nil
}

// Score builds a verdict from already extracted page text. The page is
// private when it matches more private phrases than NHS phrases.
func (s *ContentScanner) Score(text string) *Verdict {
	lower := strings.ToLower(text)
	priv := matchKeywords(lower, s.privateKeywords)
	nhs := matchKeywords(lower, s.nhsKeywords)

	v := &Verdict{
		IsPrivate:       len(priv) > 0 && len(priv) > len(nhs),
		PrivateKeywords: priv,
		NHSKeywords:     nhs,
	}
	if total := len(priv) + len(nhs); total > 0 {
		v.Confidence = float64(len(priv)) / float64(total)
	}
	return v
}

// ExtractText returns the whitespace-normalized visible text of an HTML
// document with scripts, styles and navigation chrome removed.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, svg, iframe").Remove()

	title := doc.Find("title").Text()
	meta, _ := doc.Find(`meta[name="description"]`).Attr("content")
	body := doc.Find("body").Text()

	return strings.Join(strings.Fields(title+" "+meta+" "+body), " "), nil
}

func matchKeywords(text string, keywords []string) []string {
	var found []string
	for _, kw := range keywords {
		if containsPhrase(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// containsPhrase reports whether phrase occurs in text bounded by non-letters,
// so "nhs" does not match inside another word.
func containsPhrase(text, phrase string) bool {
	for from := 0; from <= len(text)-len(phrase); {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(phrase)
		if (start == 0 || !isLetter(text[start-1])) && (end == len(text) || !isLetter(text[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
