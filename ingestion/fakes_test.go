package ingestion

import (
	"context"
	"strings"

	"github.com/coreybb/courier/datastore"
	"github.com/coreybb/courier/models"
)

type fakeUsers struct {
	byAlias map[string]*models.User
	err     error
}

func (f *fakeUsers) GetUserByEmailAlias(_ context.Context, alias string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byAlias[strings.ToLower(alias)], nil
}

type fakeSources struct {
	existing  []models.NewsletterSource
	created   []*models.NewsletterSource
	findErr   error
	createErr error
}

func (f *fakeSources) FindByIdentity(_ context.Context, fromAddress, displayName string) ([]models.NewsletterSource, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var matches []models.NewsletterSource
	for _, source := range f.existing {
		if strings.EqualFold(source.FromAddress, fromAddress) && strings.EqualFold(source.DisplayName, displayName) {
			matches = append(matches, source)
		}
	}
	return matches, nil
}

func (f *fakeSources) CreateSource(_ context.Context, source *models.NewsletterSource) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, source)
	f.existing = append(f.existing, *source)
	return nil
}

type fakeQuotas struct {
	receive      models.QuotaDecision
	receiveErr   error
	addSource    models.QuotaDecision
	addSourceErr error
	incremented  int
	incrementErr error
}

func (f *fakeQuotas) CanReceiveNewsletter(context.Context, string) (models.QuotaDecision, error) {
	return f.receive, f.receiveErr
}

func (f *fakeQuotas) CanAddSource(context.Context, string) (models.QuotaDecision, error) {
	return f.addSource, f.addSourceErr
}

func (f *fakeQuotas) IncrementSourceCount(context.Context, string) error {
	f.incremented++
	return f.incrementErr
}

type fakeNewsletters struct {
	created []*models.Newsletter
	hashes  map[string]bool
	err     error
}

func (f *fakeNewsletters) CreateWithDailyCount(_ context.Context, newsletter *models.Newsletter) error {
	if f.err != nil {
		return f.err
	}
	if f.hashes == nil {
		f.hashes = map[string]bool{}
	}
	key := newsletter.UserID + "/" + newsletter.DedupeHash
	if f.hashes[key] {
		return datastore.ErrDuplicateNewsletter
	}
	f.hashes[key] = true
	f.created = append(f.created, newsletter)
	return nil
}

type fakeSkips struct {
	records []*models.SkippedNewsletter
	err     error
}

func (f *fakeSkips) CreateSkipped(_ context.Context, skipped *models.SkippedNewsletter) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, skipped)
	return nil
}
