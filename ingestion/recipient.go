package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/coreybb/courier/models"
	"github.com/google/uuid"
)

// UserDirectory resolves users by their ingestion alias. The pipeline only
// resolves users; it never creates them.
type UserDirectory interface {
	GetUserByEmailAlias(ctx context.Context, alias string) (*models.User, error)
}

// RecipientResolver maps the target mailbox of a delivery to an internal
// user id.
type RecipientResolver struct {
	users         UserDirectory
	inboundDomain string
	defaultUserID string
}

func NewRecipientResolver(users UserDirectory, inboundDomain, defaultUserID string) *RecipientResolver {
	return &RecipientResolver{
		users:         users,
		inboundDomain: inboundDomain,
		defaultUserID: defaultUserID,
	}
}

// Resolve takes the first address of a possibly comma-separated recipient
// list and maps it to a user id. A local-part that is itself a UUID is
// used directly without a lookup (pre-addressed aliases). An alias that
// matches no user falls back to the configured default recipient when one
// is set, and otherwise returns ErrUnknownRecipient.
func (r *RecipientResolver) Resolve(ctx context.Context, to string) (string, error) {
	address := firstAddress(to)
	if address == "" {
		return "", ErrUnknownRecipient
	}

	if !strings.Contains(address, "@") {
		address = address + "@" + r.inboundDomain
	}

	localPart := address[:strings.Index(address, "@")]
	if id, err := uuid.Parse(localPart); err == nil {
		return id.String(), nil
	}

	user, err := r.users.GetUserByEmailAlias(ctx, address)
	if err != nil {
		return "", fmt.Errorf("failed to look up user by alias %q: %w", address, err)
	}
	if user != nil {
		return user.ID, nil
	}

	if r.defaultUserID != "" {
		log.Printf("INFO (RecipientResolver): No user owns alias '%s', falling back to default recipient.", address)
		return r.defaultUserID, nil
	}
	return "", ErrUnknownRecipient
}

// firstAddress extracts the bare lowercase address from the first entry of
// a recipient list, stripping any display name and angle brackets.
func firstAddress(to string) string {
	first, _, _ := strings.Cut(to, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return ""
	}

	if start := strings.LastIndex(first, "<"); start != -1 {
		if end := strings.LastIndex(first, ">"); end > start {
			first = first[start+1 : end]
		}
	}
	return strings.ToLower(strings.TrimSpace(first))
}
