package mongo_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/billbuddy/hourbank/store"
	hbmongo "github.com/billbuddy/hourbank/store/mongo"
	"github.com/billbuddy/hourbank/store/storetest"
)

// Integration tests are opt-in and require HOURBANK_MONGO_URI pointing at
// a replica set.

var dbSeq atomic.Int64

func TestConformance(t *testing.T) {
	uri := strings.TrimSpace(os.Getenv("HOURBANK_MONGO_URI"))
	if uri == "" {
		t.Skip("integration test skipped: HOURBANK_MONGO_URI is not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		client, err := mongo.Connect(options.Client().ApplyURI(uri))
		if err != nil {
			t.Fatalf("connect mongo: %v", err)
		}

		name := fmt.Sprintf("hourbank_it_%d_%d", time.Now().UnixNano(), dbSeq.Add(1))
		s := hbmongo.New(client, name)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}

		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.Database().Drop(ctx)
			_ = s.Close()
		})
		return s
	})
}
