package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coreybb/courier/datastore"
	"github.com/coreybb/courier/models"
	"github.com/coreybb/courier/webutil"
	"github.com/google/uuid"
)

// DefaultPipelineTimeout bounds one full ingestion run, from normalization
// through persistence.
const DefaultPipelineTimeout = 25 * time.Second

const auditWriteTimeout = 5 * time.Second

// NewsletterStore persists newsletters. CreateWithDailyCount must be a
// single atomic transaction that inserts the row and increments the daily
// counter, returning datastore.ErrDuplicateNewsletter when the dedupe
// constraint rejects the insert.
type NewsletterStore interface {
	CreateWithDailyCount(ctx context.Context, newsletter *models.Newsletter) error
}

// SkipAuditStore records classified non-error outcomes.
type SkipAuditStore interface {
	CreateSkipped(ctx context.Context, skipped *models.SkippedNewsletter) error
}

// Result is the terminal outcome of one pipeline run that did not error.
type Result struct {
	Created     bool
	Skipped     bool
	SkipReason  models.SkipReason
	SkipMessage string
	Newsletter  *models.Newsletter
}

// Orchestrator sequences the ingestion stages for one webhook delivery:
// normalize, verify, resolve recipient, resolve source, enforce quota,
// persist. Every stage can short-circuit to a skip or an error without
// invoking later stages. All collaborators are injected; there is no
// module-level state, so concurrent deliveries only coordinate through
// the store's own atomic operations.
type Orchestrator struct {
	normalizer  *RequestNormalizer
	verifier    *SignatureVerifier
	recipients  *RecipientResolver
	sources     *SourceResolver
	quotas      QuotaStore
	newsletters NewsletterStore
	skips       SkipAuditStore
	processor   *ContentProcessor
	timeout     time.Duration
}

func NewOrchestrator(
	normalizer *RequestNormalizer,
	verifier *SignatureVerifier,
	recipients *RecipientResolver,
	sources *SourceResolver,
	quotas QuotaStore,
	newsletters NewsletterStore,
	skips SkipAuditStore,
	processor *ContentProcessor,
) *Orchestrator {
	return &Orchestrator{
		normalizer:  normalizer,
		verifier:    verifier,
		recipients:  recipients,
		sources:     sources,
		quotas:      quotas,
		newsletters: newsletters,
		skips:       skips,
		processor:   processor,
		timeout:     DefaultPipelineTimeout,
	}
}

// Ingest runs the whole pipeline for one buffered request body. The
// returned error is one of the classified kinds (ParseError, AuthError,
// SourceLimitError, ErrPipelineTimeout) or a generic failure; a nil error
// always carries a terminal Result.
func (o *Orchestrator) Ingest(ctx context.Context, contentType string, body []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	parsed, err := o.normalizer.Parse(contentType, body)
	if err != nil {
		return Result{}, err
	}
	msg := &parsed.Message

	if err := o.verifier.Verify(parsed.Signature); err != nil {
		return Result{}, err
	}

	userID, err := o.recipients.Resolve(ctx, msg.To)
	if err != nil {
		if errors.Is(err, ErrUnknownRecipient) {
			// No user row exists, so there is nothing to attach an audit
			// record to. Still a 200: the relay must not retry this.
			return skipResult(models.SkipReasonUnknownRecipient, "No user matches the recipient address"), nil
		}
		return Result{}, o.classifyFailure(ctx, err)
	}

	sender, err := ExtractSender(msg)
	if err != nil {
		return Result{}, o.failWithAudit(ctx, userID, "", msg, fmt.Errorf("failed to determine sender: %w", err))
	}

	source, err := o.sources.Resolve(ctx, userID, sender)
	if err != nil {
		var limitErr *SourceLimitError
		if errors.As(err, &limitErr) {
			// Hard failure by design, but still worth an audit trail.
			o.auditSkip(ctx, userID, "", msg, models.SkipReasonSourceLimitReached,
				quotaDetails(limitErr.CurrentCount, limitErr.MaxAllowed))
			return Result{}, err
		}
		return Result{}, o.failWithAudit(ctx, userID, "", msg, err)
	}

	if source.IsArchived {
		o.auditSkip(ctx, userID, source.ID, msg, models.SkipReasonSourceArchived, "")
		return skipResult(models.SkipReasonSourceArchived, "Source is archived for this user"), nil
	}

	decision, err := o.quotas.CanReceiveNewsletter(ctx, userID)
	if err != nil {
		return Result{}, o.failWithAudit(ctx, userID, source.ID, msg, fmt.Errorf("failed to check newsletter quota: %w", err))
	}
	if !decision.Allowed {
		o.auditSkip(ctx, userID, source.ID, msg, models.SkipReasonDailyLimitExceeded,
			quotaDetails(decision.CurrentCount, decision.MaxAllowed))
		return skipResult(models.SkipReasonDailyLimitExceeded,
			fmt.Sprintf("Daily limit of %d newsletters reached", decision.MaxAllowed)), nil
	}

	processed := o.processor.Process(msg)
	newsletter := buildNewsletter(userID, source.ID, msg, processed)

	if err := o.newsletters.CreateWithDailyCount(ctx, newsletter); err != nil {
		if errors.Is(err, datastore.ErrDuplicateNewsletter) {
			o.auditSkip(ctx, userID, source.ID, msg, models.SkipReasonDuplicate, "")
			return skipResult(models.SkipReasonDuplicate, "Newsletter was already received"), nil
		}
		return Result{}, o.failWithAudit(ctx, userID, source.ID, msg, fmt.Errorf("failed to persist newsletter: %w", err))
	}

	log.Printf("INFO (Orchestrator): Stored newsletter %s for user %s (source %s)", newsletter.ID, userID, source.ID)
	return Result{Created: true, Newsletter: newsletter}, nil
}

func skipResult(reason models.SkipReason, message string) Result {
	return Result{Skipped: true, SkipReason: reason, SkipMessage: message}
}

// buildNewsletter assembles the durable record. The dedupe hash is derived
// from the source, subject, and final content, so a second delivery of the
// same physical email produces the same key.
func buildNewsletter(userID, sourceID string, msg *EmailMessage, processed ProcessedContent) *models.Newsletter {
	title := processed.ExtractedTitle
	if title == "" {
		title = msg.Subject
	}
	if title == "" {
		title = "Untitled Newsletter"
	}

	content := processed.ContentHTML
	if content == "" {
		content = processed.ContentText
	}

	return &models.Newsletter{
		ID:         uuid.NewString(),
		UserID:     userID,
		SourceID:   sourceID,
		Title:      title,
		Content:    content,
		Excerpt:    excerptFromText(processed.ContentText),
		DedupeHash: webutil.DedupeKey(sourceID, msg.Subject, content),
		ReceivedAt: time.Now().UTC(),
	}
}

// classifyFailure converts a deadline expiry into the timeout error kind.
func (o *Orchestrator) classifyFailure(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", ErrPipelineTimeout, err)
	}
	return err
}

// failWithAudit makes a best-effort processing_error audit write before
// propagating the failure. The audit write must never mask the original
// error, so its own failure is only logged.
func (o *Orchestrator) failWithAudit(ctx context.Context, userID, sourceID string, msg *EmailMessage, err error) error {
	o.auditSkip(ctx, userID, sourceID, msg, models.SkipReasonProcessingError,
		fmt.Sprintf(`{"error":%q}`, err.Error()))
	return o.classifyFailure(ctx, err)
}

// auditSkip appends a SkippedNewsletter record. The write happens on a
// fresh deadline detached from the pipeline's, so an expired pipeline can
// still leave its audit trail.
func (o *Orchestrator) auditSkip(ctx context.Context, userID, sourceID string, msg *EmailMessage, reason models.SkipReason, details string) {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	skipped := &models.SkippedNewsletter{
		ID:          uuid.NewString(),
		UserID:      userID,
		SourceID:    sourceID,
		Title:       msg.Subject,
		Content:     firstNonEmpty(msg.BodyPlain, msg.BodyHTML),
		SkipReason:  reason,
		SkipDetails: details,
		ReceivedAt:  time.Now().UTC(),
	}
	if err := o.skips.CreateSkipped(auditCtx, skipped); err != nil {
		log.Printf("WARN (Orchestrator): Failed to write %s audit record for user %s: %v", reason, userID, err)
	}
}

func quotaDetails(current, max int) string {
	details, err := json.Marshal(map[string]int{"current_count": current, "max_allowed": max})
	if err != nil {
		return ""
	}
	return string(details)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
