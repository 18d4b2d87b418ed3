package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/sku-scraper/internal/models"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestRedisStream_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("one XADD per record", func(t *testing.T) {
		client := new(MockRedisClient)
		client.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			values := args.Values.(map[string]interface{})
			return args.Stream == DefaultStream &&
				values["type"] == "PRODUCT_RECORD_EXTRACTED" &&
				values["run_id"] == "run-1" &&
				values["retailer"] == "Amazon"
		})).Return(nil).Twice()

		s := NewRedisStream(client, "", "run-1")
		s.now = func() time.Time { return time.Unix(0, 42) }

		err := s.Append(ctx, []*models.ExtractedRecord{
			{SKU: "B1", Retailer: models.RetailerAmazon},
			{SKU: "B2", Retailer: models.RetailerAmazon, Title: strPtr("Widget")},
		})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("publish error is returned", func(t *testing.T) {
		client := new(MockRedisClient)
		client.On("XAdd", ctx, mock.Anything).Return(errors.New("connection refused"))

		s := NewRedisStream(client, "stream:custom", "run-2")
		err := s.Append(ctx, []*models.ExtractedRecord{{SKU: "B1", Retailer: models.RetailerAmazon}})

		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("close closes the client", func(t *testing.T) {
		client := new(MockRedisClient)
		client.On("Close").Return(nil)

		require.NoError(t, NewRedisStream(client, "", "").Close())
		client.AssertExpectations(t)
	})
}
