package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/apihub/internal/store"
	"github.com/kiranshivaraju/apihub/internal/webhook"
	"github.com/kiranshivaraju/apihub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	id      string
	success bool
}

type memStore struct {
	mu         sync.Mutex
	hooks      map[string]*models.Webhook
	deliveries []delivery
	createErr  error
}

func newMemStore(hooks ...*models.Webhook) *memStore {
	m := &memStore{hooks: map[string]*models.Webhook{}}
	for _, h := range hooks {
		m.hooks[h.ID] = h
	}
	return m
}

func (m *memStore) CreateWebhook(_ context.Context, wh *models.Webhook) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[wh.ID] = wh
	return nil
}

func (m *memStore) GetWebhook(_ context.Context, id string) (*models.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wh, ok := m.hooks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return wh, nil
}

func (m *memStore) RecordWebhookDelivery(_ context.Context, id string, success bool, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, delivery{id: id, success: success})
	return nil
}

func TestCreate_DefaultsEvents(t *testing.T) {
	s := newMemStore()
	wh, err := webhook.NewService(s, time.Second).Create(context.Background(), "https://example.com/hook", nil)
	require.NoError(t, err)

	assert.Regexp(t, `^wh_[0-9a-f]{16}$`, wh.ID)
	assert.Equal(t, []string{"chat.message"}, wh.Events)
	assert.True(t, wh.IsEnabled)
	assert.Contains(t, s.hooks, wh.ID)
}

func TestCreate_KeepsEvents(t *testing.T) {
	wh, err := webhook.NewService(newMemStore(), time.Second).
		Create(context.Background(), "http://localhost:9000/x", []string{"chat.message", "key.revoked"})
	require.NoError(t, err)
	assert.Equal(t, []string{"chat.message", "key.revoked"}, wh.Events)
}

func TestCreate_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "example.com/hook", "ftp://example.com", "https://", "::bad"} {
		_, err := webhook.NewService(newMemStore(), time.Second).Create(context.Background(), u, nil)
		assert.ErrorIs(t, err, webhook.ErrInvalidURL, u)
	}
}

func TestTest_SuccessfulDelivery(t *testing.T) {
	var got webhook.Payload
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := newMemStore(&models.Webhook{ID: "wh_1", URL: srv.URL})
	res, err := webhook.NewService(s, time.Second).Test(context.Background(), "wh_1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, http.StatusNoContent, res.Status)
	assert.Equal(t, "Test completed", res.Message)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "test.ping", got.Event)
	assert.Equal(t, "Test webhook from API Hub", got.Data["message"])
	_, err = time.Parse(time.RFC3339, got.Timestamp)
	assert.NoError(t, err)

	require.Len(t, s.deliveries, 1)
	assert.Equal(t, delivery{id: "wh_1", success: true}, s.deliveries[0])
}

func TestTest_ErrorStatusCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := newMemStore(&models.Webhook{ID: "wh_1", URL: srv.URL})
	res, err := webhook.NewService(s, time.Second).Test(context.Background(), "wh_1")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "Test completed", res.Message)
	assert.Equal(t, delivery{id: "wh_1", success: false}, s.deliveries[0])
}

func TestTest_UnreachableCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close()

	s := newMemStore(&models.Webhook{ID: "wh_1", URL: target})
	res, err := webhook.NewService(s, time.Second).Test(context.Background(), "wh_1")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Zero(t, res.Status)
	assert.Contains(t, res.Message, webhook.ErrUnreachable.Error())
	assert.Equal(t, delivery{id: "wh_1", success: false}, s.deliveries[0])
}

func TestTest_TimeoutCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	s := newMemStore(&models.Webhook{ID: "wh_1", URL: srv.URL})
	res, err := webhook.NewService(s, 50*time.Millisecond).Test(context.Background(), "wh_1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, webhook.ErrTimeout.Error())
	require.Len(t, s.deliveries, 1)
}

func TestTest_UnknownWebhook(t *testing.T) {
	s := newMemStore()
	_, err := webhook.NewService(s, time.Second).Test(context.Background(), "wh_missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, s.deliveries)
}

func TestCreate_StoreError(t *testing.T) {
	s := newMemStore()
	s.createErr = errors.New("db down")
	_, err := webhook.NewService(s, time.Second).Create(context.Background(), "https://example.com", nil)
	assert.Error(t, err)
}
