//go:build integration

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"claimguard/pkg/platform/sentinel"
	"claimguard/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(RunMigrations(context.Background(), s.postgres.DB))
	s.store = NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "records"))
}

func (s *PostgresStoreSuite) TestContract() {
	runContract(&s.Suite, s.store)
}

// TestConcurrentResultWrites verifies that racing writers of one result
// produce exactly one row.
func (s *PostgresStoreSuite) TestConcurrentResultWrites() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Put(ctx, testEntity{Kind: KindResult, ID: "RESULT_20250314_001", Value: "approved"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestPutAllRollsBackOnConflict() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, testEntity{Kind: KindResult, ID: "r1", Value: "approved"}))

	err := s.store.PutAll(ctx,
		testEntity{Kind: KindClaim, ID: "c9", Value: "approved"},
		testEntity{Kind: KindResult, ID: "r1", Value: "denied"},
	)
	s.True(errors.Is(err, sentinel.ErrConflict))

	var got testEntity
	err = s.store.Get(ctx, KindClaim, "c9", &got)
	s.True(errors.Is(err, sentinel.ErrNotFound), "claim write rolled back with the failed result")
}
