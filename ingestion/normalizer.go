package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"
)

// EmailMessage is the canonical form of one forwarded email, produced once
// per request by the normalizer and immutable afterward.
type EmailMessage struct {
	To         string // may contain multiple comma-separated addresses
	From       string // display-name + address as sent by the relay
	Subject    string
	BodyPlain  string
	BodyHTML   string
	RawHeaders string
}

// SignatureParams are the webhook authentication fields, extracted by the
// same parse that produced the message.
type SignatureParams struct {
	Token     string
	Timestamp string
	Signature string
}

// ParsedWebhook bundles everything one parser strategy extracted.
type ParsedWebhook struct {
	Message   EmailMessage
	Signature SignatureParams
}

// isComplete reports whether the parse yielded enough to proceed: a
// recipient, a sender, and a subject.
func (p *ParsedWebhook) isComplete() bool {
	return p.Message.To != "" && p.Message.From != "" && p.Message.Subject != ""
}

const maxMultipartPartBytes = 16 << 20

// parserStrategy is one independent way of reading the webhook body. Each
// strategy receives its own view of the buffered body; none consumes it
// destructively.
type parserStrategy struct {
	name    string
	applies func(contentType string) bool
	parse   func(contentType string, body []byte) (*ParsedWebhook, error)
}

// RequestNormalizer turns a raw webhook body into a ParsedWebhook by
// trying an ordered chain of parser strategies: JSON when the content type
// says so, then multipart/url-encoded form data, then a raw-body heuristic
// for ambiguous or missing content types. The first strategy yielding a
// complete message wins.
type RequestNormalizer struct {
	strategies []parserStrategy
}

func NewRequestNormalizer() *RequestNormalizer {
	return &RequestNormalizer{
		strategies: []parserStrategy{
			{
				name: "json",
				applies: func(contentType string) bool {
					return strings.Contains(contentType, "application/json")
				},
				parse: parseJSONBody,
			},
			{
				name: "form",
				applies: func(contentType string) bool {
					return strings.Contains(contentType, "multipart/form-data") ||
						strings.Contains(contentType, "application/x-www-form-urlencoded")
				},
				parse: parseFormBody,
			},
			{
				name: "raw",
				applies: func(contentType string) bool {
					return true
				},
				parse: parseRawBody,
			},
		},
	}
}

// Parse runs the strategy chain. It returns a ParseError when no strategy
// produces a complete message.
func (n *RequestNormalizer) Parse(contentType string, body []byte) (*ParsedWebhook, error) {
	if len(body) == 0 {
		return nil, NewParseError(fmt.Errorf("empty request body"))
	}

	var lastErr error
	for _, strategy := range n.strategies {
		if !strategy.applies(contentType) {
			continue
		}
		parsed, err := strategy.parse(contentType, body)
		if err != nil {
			log.Printf("WARN (RequestNormalizer): Strategy %q failed: %v", strategy.name, err)
			lastErr = err
			continue
		}
		if parsed.isComplete() {
			return parsed, nil
		}
		log.Printf("INFO (RequestNormalizer): Strategy %q parsed but yielded an incomplete message, trying next strategy.", strategy.name)
	}
	return nil, NewParseError(lastErr)
}

// fieldGetter abstracts over the underlying key-value representation so
// all strategies share one alias-resolution path.
type fieldGetter func(key string) string

// webhookFromFields maps relay field names (and their synonyms) onto the
// canonical message. Recognized synonyms: recipient|to, from|sender,
// html|body-html, text|body-plain, message-headers.
func webhookFromFields(get fieldGetter) *ParsedWebhook {
	first := func(keys ...string) string {
		for _, key := range keys {
			if v := get(key); v != "" {
				return v
			}
		}
		return ""
	}

	return &ParsedWebhook{
		Message: EmailMessage{
			To:         first("recipient", "to"),
			From:       first("from", "sender"),
			Subject:    get("subject"),
			BodyPlain:  first("text", "body-plain"),
			BodyHTML:   first("html", "body-html"),
			RawHeaders: get("message-headers"),
		},
		Signature: SignatureParams{
			Token:     get("token"),
			Timestamp: get("timestamp"),
			Signature: get("signature"),
		},
	}
}

func parseJSONBody(_ string, body []byte) (*ParsedWebhook, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	get := func(key string) string {
		switch v := payload[key].(type) {
		case string:
			return v
		case float64:
			// Relays send the signature timestamp as a JSON number.
			return strconv.FormatInt(int64(v), 10)
		default:
			return ""
		}
	}
	return webhookFromFields(get), nil
}

func parseFormBody(contentType string, body []byte) (*ParsedWebhook, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("unparseable content type %q: %w", contentType, err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		values, err := parseMultipartFields(body, params["boundary"])
		if err != nil {
			return nil, err
		}
		return webhookFromFields(values.Get), nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("invalid url-encoded body: %w", err)
	}
	return webhookFromFields(values.Get), nil
}

// parseRawBody treats an ambiguous body as url-encoded if it looks like
// one. Some relays omit or mangle the content type header.
func parseRawBody(_ string, body []byte) (*ParsedWebhook, error) {
	if !bytes.ContainsAny(body, "=&") {
		return nil, fmt.Errorf("raw body does not look url-encoded")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("invalid raw url-encoded body: %w", err)
	}
	return webhookFromFields(values.Get), nil
}

func parseMultipartFields(body []byte, boundary string) (url.Values, error) {
	if boundary == "" {
		return nil, fmt.Errorf("multipart body without boundary parameter")
	}

	values := url.Values{}
	attachments := 0
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read multipart part: %w", err)
		}
		// File parts (attachments) are not webhook fields.
		if part.FileName() != "" {
			attachments++
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, maxMultipartPartBytes))
		_ = part.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read multipart field %q: %w", part.FormName(), err)
		}
		values.Add(part.FormName(), string(data))
	}
	if attachments > 0 {
		log.Printf("INFO (RequestNormalizer): Delivery carried %d attachment(s); attachments are not stored.", attachments)
	}
	return values, nil
}
