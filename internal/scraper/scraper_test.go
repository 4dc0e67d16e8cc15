package scraper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/dandantas/shopwatch/internal/shopapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeClient struct {
	info       *shopapi.PlatformInfo
	infoErr    error
	extensions []model.Extension
	extErr     error
	tasks      []model.ScheduledTask
	taskErr    error
	delay      time.Duration

	mu    sync.Mutex
	calls []string
}

func (f *fakeClient) called(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeClient) PlatformInfo(ctx context.Context, shop *model.Shop) (*shopapi.PlatformInfo, error) {
	f.called(shopapi.EndpointInfo)
	return f.info, f.infoErr
}

func (f *fakeClient) InstalledExtensions(ctx context.Context, shop *model.Shop) ([]model.Extension, error) {
	f.called(shopapi.EndpointExtensions)
	return f.extensions, f.extErr
}

func (f *fakeClient) ScheduledTasks(ctx context.Context, shop *model.Shop) ([]model.ScheduledTask, error) {
	f.called(shopapi.EndpointTasks)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.tasks, f.taskErr
}

type countingRecorder struct {
	mu       sync.Mutex
	failures []string
}

func (r *countingRecorder) RemoteCallFailed(endpoint string) {
	r.mu.Lock()
	r.failures = append(r.failures, endpoint)
	r.mu.Unlock()
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testShop() *model.Shop {
	return &model.Shop{ID: primitive.NewObjectID(), Name: "demo", URL: "https://shop.example"}
}

func TestScrape_AllCallsSucceed(t *testing.T) {
	client := &fakeClient{
		info:       &shopapi.PlatformInfo{Version: "6.5.0.0", Environment: "production", AdminWorkerEnabled: true},
		extensions: []model.Extension{{Name: "SwagPlatformSecurity", Active: true, Version: "1.0", LatestVersion: "1.0", Installed: true}},
		tasks:      []model.ScheduledTask{{Name: "cleanup", Status: "scheduled"}},
	}
	shop := testShop()

	snapshot, err := New(client, time.Second, WithClock(func() time.Time { return fixedNow })).Scrape(context.Background(), shop)
	require.NoError(t, err)

	assert.Equal(t, shop.Key(), snapshot.ShopID)
	assert.Equal(t, "6.5.0.0", snapshot.PlatformVersion)
	assert.Equal(t, "production", snapshot.Environment)
	assert.True(t, snapshot.AdminWorkerEnabled)
	assert.Len(t, snapshot.Extensions, 1)
	assert.Len(t, snapshot.ScheduledTasks, 1)
	assert.False(t, snapshot.Partial)
	assert.Empty(t, snapshot.Missing)
	assert.Equal(t, fixedNow, snapshot.CapturedAt)
}

func TestScrape_InfoFailureIsFatal(t *testing.T) {
	client := &fakeClient{
		infoErr:    &shopapi.RequestError{Endpoint: shopapi.EndpointInfo, StatusCode: 500, Err: errors.New("Internal Server Error")},
		extensions: []model.Extension{},
		tasks:      []model.ScheduledTask{},
	}
	recorder := &countingRecorder{}

	snapshot, err := New(client, time.Second, WithFailureRecorder(recorder)).Scrape(context.Background(), testShop())
	assert.Nil(t, snapshot)
	require.ErrorIs(t, err, ErrPlatformInfoUnavailable)

	var reqErr *shopapi.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 500, reqErr.StatusCode)

	// Settle-all: the other two calls still ran
	assert.ElementsMatch(t, []string{shopapi.EndpointInfo, shopapi.EndpointExtensions, shopapi.EndpointTasks}, client.calls)
	assert.Equal(t, []string{shopapi.EndpointInfo}, recorder.failures)
}

func TestScrape_ExtensionFailureYieldsPartialSnapshot(t *testing.T) {
	client := &fakeClient{
		info:   &shopapi.PlatformInfo{Version: "6.5.0.0"},
		extErr: errors.New("timeout"),
		tasks:  []model.ScheduledTask{{Name: "cleanup"}},
	}

	snapshot, err := New(client, time.Second).Scrape(context.Background(), testShop())
	require.NoError(t, err)

	assert.True(t, snapshot.Partial)
	assert.Equal(t, []string{model.FieldExtensions}, snapshot.Missing)
	assert.NotNil(t, snapshot.Extensions)
	assert.Empty(t, snapshot.Extensions)
	assert.Len(t, snapshot.ScheduledTasks, 1)
	assert.False(t, snapshot.Has(model.FieldExtensions))
	assert.True(t, snapshot.Has(model.FieldScheduledTasks))
}

func TestScrape_SlowCallIsBoundedByTimeout(t *testing.T) {
	client := &fakeClient{
		info:  &shopapi.PlatformInfo{Version: "6.5.0.0"},
		delay: time.Second,
	}

	start := time.Now()
	snapshot, err := New(client, 20*time.Millisecond).Scrape(context.Background(), testShop())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{model.FieldScheduledTasks}, snapshot.Missing)
	assert.Empty(t, snapshot.ScheduledTasks)
}

func TestScrape_NilListsBecomeEmpty(t *testing.T) {
	client := &fakeClient{info: &shopapi.PlatformInfo{Version: "6.5.0.0"}}

	snapshot, err := New(client, time.Second).Scrape(context.Background(), testShop())
	require.NoError(t, err)

	assert.NotNil(t, snapshot.Extensions)
	assert.NotNil(t, snapshot.ScheduledTasks)
	assert.False(t, snapshot.Partial)
}
