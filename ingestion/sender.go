package ingestion

import (
	"fmt"
	"log"
	"strings"

	"github.com/jhillyerd/enmime"
)

// SenderIdentity is the resolved sending identity of one email.
type SenderIdentity struct {
	Address     string
	DisplayName string
}

// ExtractSender determines the actual sender of the message. Parsed MIME
// headers are the most reliable signal when the relay forwarded them, so
// the chain is: Sender header, then From header from the raw header block,
// then the webhook's own from field, then a manual "Name <addr>" fallback.
func ExtractSender(msg *EmailMessage) (SenderIdentity, error) {
	if msg.RawHeaders != "" {
		if identity, ok := senderFromRawHeaders(msg.RawHeaders); ok {
			return identity, nil
		}
	}

	rawFrom := strings.TrimSpace(msg.From)
	if rawFrom == "" {
		return SenderIdentity{}, fmt.Errorf("no sender information in message")
	}

	if addrs, err := enmime.ParseAddressList(rawFrom); err == nil && len(addrs) > 0 && addrs[0].Address != "" {
		return SenderIdentity{
			Address:     strings.ToLower(addrs[0].Address),
			DisplayName: strings.TrimSpace(addrs[0].Name),
		}, nil
	}

	// Simple extraction from "Name <email@example.com>" format.
	if start := strings.LastIndex(rawFrom, "<"); start != -1 {
		if end := strings.LastIndex(rawFrom, ">"); end > start {
			extracted := strings.TrimSpace(rawFrom[start+1 : end])
			if extracted != "" {
				return SenderIdentity{
					Address:     strings.ToLower(extracted),
					DisplayName: strings.Trim(strings.TrimSpace(rawFrom[:start]), `"`),
				}, nil
			}
		}
	}

	if strings.Contains(rawFrom, "@") {
		return SenderIdentity{Address: strings.ToLower(rawFrom)}, nil
	}
	return SenderIdentity{}, fmt.Errorf("could not determine sender address from %q", rawFrom)
}

// senderFromRawHeaders parses the forwarded header block with enmime and
// tries the Sender then From headers.
func senderFromRawHeaders(rawHeaders string) (SenderIdentity, bool) {
	// A bare header block is a valid body-less RFC 5322 message.
	env, err := enmime.ReadEnvelope(strings.NewReader(rawHeaders + "\r\n\r\n"))
	if err != nil {
		log.Printf("WARN (ExtractSender): Could not parse forwarded message headers: %v", err)
		return SenderIdentity{}, false
	}

	for _, header := range []string{"Sender", "From"} {
		addrs, err := env.AddressList(header)
		if err != nil || len(addrs) == 0 || addrs[0].Address == "" {
			continue
		}
		return SenderIdentity{
			Address:     strings.ToLower(addrs[0].Address),
			DisplayName: strings.TrimSpace(addrs[0].Name),
		}, true
	}
	return SenderIdentity{}, false
}
