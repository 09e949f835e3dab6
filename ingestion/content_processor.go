package ingestion

import (
	"log"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// ProcessedContent holds the results of content processing for one email.
type ProcessedContent struct {
	ContentHTML    string // sanitized main HTML, when the email had an HTML body
	ContentText    string // plain text rendition, used for the excerpt
	ExtractedTitle string // title extracted by the Readability library, may be empty
}

// ContentProcessor cleans the HTML body of a newsletter and extracts its
// main content. Plain-text-only emails pass through untouched.
type ContentProcessor struct {
	htmlPolicy      *bluemonday.Policy
	stripTagsPolicy *bluemonday.Policy
	baseURL         *url.URL
}

func NewContentProcessor() *ContentProcessor {
	// Readability only uses the base URL to resolve relative links;
	// email bodies have no real page URL.
	baseURL, _ := url.Parse("http://localhost")
	return &ContentProcessor{
		htmlPolicy:      bluemonday.UGCPolicy(),
		stripTagsPolicy: bluemonday.StripTagsPolicy(),
		baseURL:         baseURL,
	}
}

// Process sanitizes and extracts the main content of the message body.
// It never fails: when Readability cannot find an article the sanitized
// HTML is used as-is, and a message without HTML falls back to its plain
// text body.
func (cp *ContentProcessor) Process(msg *EmailMessage) ProcessedContent {
	if msg.BodyHTML == "" {
		return ProcessedContent{ContentText: strings.TrimSpace(msg.BodyPlain)}
	}

	cleanedHTML := cp.htmlPolicy.Sanitize(msg.BodyHTML)
	if cleanedHTML == "" {
		log.Printf("WARN (ContentProcessor): Sanitizer stripped the entire HTML body; falling back to plain text.")
		return ProcessedContent{ContentText: strings.TrimSpace(msg.BodyPlain)}
	}

	article, err := readability.FromReader(strings.NewReader(cleanedHTML), cp.baseURL)
	if err != nil || article.Content == "" {
		if err != nil {
			log.Printf("WARN (ContentProcessor): Readability extraction failed: %v. Using sanitized HTML as-is.", err)
		}
		text := strings.TrimSpace(cp.stripTagsPolicy.Sanitize(cleanedHTML))
		if text == "" {
			text = strings.TrimSpace(msg.BodyPlain)
		}
		return ProcessedContent{ContentHTML: cleanedHTML, ContentText: text}
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		text = strings.TrimSpace(cp.stripTagsPolicy.Sanitize(article.Content))
	}
	return ProcessedContent{
		ContentHTML:    article.Content,
		ContentText:    text,
		ExtractedTitle: strings.TrimSpace(article.Title),
	}
}

// excerptFromText creates a short summary from plain text, trimming at a
// sentence or word boundary where one falls close enough to the limit.
func excerptFromText(plainText string) string {
	const maxLength = 250
	trimmed := strings.TrimSpace(plainText)

	runes := []rune(trimmed)
	if len(runes) <= maxLength {
		return trimmed
	}

	head := string(runes[:maxLength])

	if lastPeriod := strings.LastIndex(head, ". "); lastPeriod > maxLength-75 {
		return head[:lastPeriod+1] + "..."
	}
	if lastSpace := strings.LastIndex(head, " "); lastSpace > maxLength-100 {
		return head[:lastSpace] + "..."
	}
	return head + "..."
}
