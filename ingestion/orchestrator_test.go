package ingestion

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/coreybb/courier/models"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	users       *fakeUsers
	sources     *fakeSources
	quotas      *fakeQuotas
	newsletters *fakeNewsletters
	skips       *fakeSkips
	verifier    *SignatureVerifier
}

func newFixture() *pipelineFixture {
	return &pipelineFixture{
		users: &fakeUsers{byAlias: map[string]*models.User{
			"inbox@in.courier.dev": {ID: testUserID},
		}},
		sources: &fakeSources{},
		quotas: &fakeQuotas{
			receive:   allowedDecision(0, 50),
			addSource: allowedDecision(0, 25),
		},
		newsletters: &fakeNewsletters{},
		skips:       &fakeSkips{},
		verifier:    NewSignatureVerifier("", false),
	}
}

func (f *pipelineFixture) orchestrator() *Orchestrator {
	return NewOrchestrator(
		NewRequestNormalizer(),
		f.verifier,
		NewRecipientResolver(f.users, testInboundDomain, ""),
		NewSourceResolver(f.sources, f.quotas),
		f.quotas,
		f.newsletters,
		f.skips,
		NewContentProcessor(),
	)
}

func webhookBody(to, from, subject, text string) []byte {
	form := url.Values{}
	form.Set("recipient", to)
	form.Set("from", from)
	form.Set("subject", subject)
	form.Set("body-plain", text)
	return []byte(form.Encode())
}

const formContentType = "application/x-www-form-urlencoded"

func TestIngestCreatesNewsletter(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	orch := fixture.orchestrator()

	body := webhookBody("inbox@in.courier.dev", "Weekly Digest <digest@example.com>", "Issue 42", "The answer to everything.")
	result, err := orch.Ingest(context.Background(), formContentType, body)
	assert.NoError(err)
	assert.True(result.Created)
	assert.NotNil(result.Newsletter)
	assert.Equal(testUserID, result.Newsletter.UserID)
	assert.Equal("Issue 42", result.Newsletter.Title)
	assert.Equal("The answer to everything.", result.Newsletter.Excerpt)
	assert.NotEmpty(result.Newsletter.DedupeHash)

	assert.Len(fixture.sources.created, 1, "first sighting should create the source")
	assert.Equal("digest@example.com", fixture.sources.created[0].FromAddress)
	assert.Equal("Weekly Digest", fixture.sources.created[0].DisplayName)
	assert.Len(fixture.newsletters.created, 1)
	assert.Empty(fixture.skips.records)
}

func TestIngestDuplicateDeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	orch := fixture.orchestrator()

	body := webhookBody("inbox@in.courier.dev", "digest@example.com", "Issue 42", "Same physical email.")

	first, err := orch.Ingest(context.Background(), formContentType, body)
	assert.NoError(err)
	assert.True(first.Created)

	second, err := orch.Ingest(context.Background(), formContentType, body)
	assert.NoError(err, "redelivery must never surface as an error")
	assert.True(second.Skipped)
	assert.Equal(models.SkipReasonDuplicate, second.SkipReason)

	assert.Len(fixture.newsletters.created, 1, "exactly one newsletter per physical email")
	assert.Len(fixture.skips.records, 1)
	assert.Equal(models.SkipReasonDuplicate, fixture.skips.records[0].SkipReason)
}

func TestIngestDailyLimitExceeded(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	fixture.quotas.receive = models.QuotaDecision{
		Allowed:      false,
		CurrentCount: 50,
		MaxAllowed:   50,
		Reason:       string(models.SkipReasonDailyLimitExceeded),
	}
	orch := fixture.orchestrator()

	body := webhookBody("inbox@in.courier.dev", "digest@example.com", "Issue 43", "Over quota.")
	result, err := orch.Ingest(context.Background(), formContentType, body)
	assert.NoError(err, "quota exhaustion is normal operation, not an error")
	assert.True(result.Skipped)
	assert.Equal(models.SkipReasonDailyLimitExceeded, result.SkipReason)

	assert.Empty(fixture.newsletters.created)
	assert.Len(fixture.skips.records, 1)
	assert.Equal(models.SkipReasonDailyLimitExceeded, fixture.skips.records[0].SkipReason)
	assert.Contains(fixture.skips.records[0].SkipDetails, `"max_allowed":50`)
}

func TestIngestDailyQuotaIndependentOfSourceLimit(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	// An unlimited plan with a tiny source allowance: the daily check must
	// read the newsletter limit, never the source limit.
	fixture.sources.existing = []models.NewsletterSource{
		{ID: "src-1", FromAddress: "digest@example.com", DisplayName: ""},
	}
	fixture.quotas.receive = allowedDecision(5000, models.UnlimitedSentinel)
	fixture.quotas.addSource = allowedDecision(1, 1)
	orch := fixture.orchestrator()

	body := webhookBody("inbox@in.courier.dev", "digest@example.com", "Issue 44", "Still under the real limit.")
	result, err := orch.Ingest(context.Background(), formContentType, body)
	assert.NoError(err)
	assert.True(result.Created)
	assert.Empty(fixture.skips.records)
}

func TestIngestUnknownRecipientSkips(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	fixture.users = &fakeUsers{}
	orch := fixture.orchestrator()

	body := webhookBody("stranger@in.courier.dev", "digest@example.com", "Issue 45", "Nobody home.")
	result, err := orch.Ingest(context.Background(), formContentType, body)
	assert.NoError(err, "an unknown mailbox alias must not trigger relay retries")
	assert.True(result.Skipped)
	assert.Equal(models.SkipReasonUnknownRecipient, result.SkipReason)
	assert.Empty(fixture.newsletters.created)
}

func TestIngestArchivedSourceSkips(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	fixture.sources.existing = []models.NewsletterSource{
		{ID: "src-1", FromAddress: "digest@example.com", DisplayName: "", IsArchived: true},
	}
	orch := fixture.orchestrator()

	body := webhookBody("inbox@in.courier.dev", "digest@example.com", "Issue 46", "From an archived source.")
	result, err := orch.Ingest(context.Background(), formContentType, body)
	assert.NoError(err)
	assert.True(result.Skipped)
	assert.Equal(models.SkipReasonSourceArchived, result.SkipReason)

	assert.Empty(fixture.newsletters.created)
	assert.Len(fixture.skips.records, 1)
	assert.Equal("src-1", fixture.skips.records[0].SourceID)
}

func TestIngestSourceLimitIsHardError(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	fixture.quotas.addSource = allowedDecision(25, 25)
	orch := fixture.orchestrator()

	body := webhookBody("inbox@in.courier.dev", "new-sender@example.com", "Issue 47", "One source too many.")
	_, err := orch.Ingest(context.Background(), formContentType, body)

	var limitErr *SourceLimitError
	assert.ErrorAs(err, &limitErr, "a blocked source creation is an error, not a skip")
	assert.Empty(fixture.newsletters.created)
	assert.Len(fixture.skips.records, 1, "the hard failure still leaves an audit trail")
	assert.Equal(models.SkipReasonSourceLimitReached, fixture.skips.records[0].SkipReason)
}

func TestIngestPersistFailureAuditsProcessingError(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	fixture.newsletters.err = errors.New("connection reset")
	orch := fixture.orchestrator()

	body := webhookBody("inbox@in.courier.dev", "digest@example.com", "Issue 48", "Store is down.")
	_, err := orch.Ingest(context.Background(), formContentType, body)
	assert.Error(err)

	assert.Len(fixture.skips.records, 1)
	assert.Equal(models.SkipReasonProcessingError, fixture.skips.records[0].SkipReason)
	assert.Contains(fixture.skips.records[0].SkipDetails, "connection reset")
}

func TestIngestAuditFailureDoesNotMaskError(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	fixture.newsletters.err = errors.New("connection reset")
	fixture.skips.err = errors.New("audit table missing")
	orch := fixture.orchestrator()

	body := webhookBody("inbox@in.courier.dev", "digest@example.com", "Issue 49", "Everything is down.")
	_, err := orch.Ingest(context.Background(), formContentType, body)
	assert.ErrorContains(err, "connection reset", "the original failure must survive a failed audit write")
}

func TestIngestMissingSignatureInProduction(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	fixture.verifier = NewSignatureVerifier("secret", true)
	orch := fixture.orchestrator()

	body := webhookBody("inbox@in.courier.dev", "digest@example.com", "Issue 50", "Unsigned.")
	_, err := orch.Ingest(context.Background(), formContentType, body)

	var authErr *AuthError
	assert.ErrorAs(err, &authErr)
	assert.True(authErr.MissingParams)
	assert.Empty(fixture.newsletters.created)
	assert.Empty(fixture.skips.records, "rejected deliveries are not audited before a user is known")
}

func TestIngestValidSignatureProceeds(t *testing.T) {
	t.Parallel()

	assert := require.New(t)
	fixture := newFixture()
	fixture.verifier = NewSignatureVerifier("secret", true)
	orch := fixture.orchestrator()

	form := url.Values{}
	form.Set("recipient", "inbox@in.courier.dev")
	form.Set("from", "digest@example.com")
	form.Set("subject", "Issue 51")
	form.Set("body-plain", "Signed and sealed.")
	form.Set("token", "tok-1")
	form.Set("timestamp", "1700000000")
	form.Set("signature", signParams("secret", "1700000000", "tok-1"))

	result, err := orch.Ingest(context.Background(), formContentType, []byte(form.Encode()))
	assert.NoError(err)
	assert.True(result.Created)
}
