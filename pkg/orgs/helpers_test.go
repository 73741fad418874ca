package orgs

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/leasehold/leasehold/pkg/audit"
	"github.com/leasehold/leasehold/pkg/database/dbtest"
	"github.com/leasehold/leasehold/pkg/rbac"
)

type fakeInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, organizationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, organizationID)
	return nil
}

func (f *fakeInvalidator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixture struct {
	db          *sql.DB
	seed        *dbtest.Seeder
	service     *Service
	invalidator *fakeInvalidator
	audit       *audit.Recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db := dbtest.OpenSQLite(t, Schema(), rbac.Schema())
	seed := dbtest.NewSeeder(t, db)
	invalidator := &fakeInvalidator{}
	recorder := &audit.Recorder{}

	opts = append([]Option{WithInvalidator(invalidator), WithAuditLogger(recorder)}, opts...)
	service := NewService(db, opts...)
	service.now = func() time.Time { return seed.Now }

	return &fixture{db: db, seed: seed, service: service, invalidator: invalidator, audit: recorder}
}
