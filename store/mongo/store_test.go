package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/bidbank/store"
	"github.com/xraph/bidbank/store/mongo"
	"github.com/xraph/bidbank/store/storetest"
)

func TestConformance(t *testing.T) {
	uri := os.Getenv("BIDBANK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("BIDBANK_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		mdb := mongodriver.New()
		require.NoError(t, mdb.Open(ctx, uri, mongodriver.WithDatabase("bidbank_test")))
		db, err := grove.Open(mdb)
		require.NoError(t, err)

		s := mongo.New(db)
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}
