package bsp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
)

func testCreds() Credentials {
	return Credentials{
		CredAccountSID: "AC123",
		CredAuthToken:  "secret",
		CredFromNumber: "+40700000000",
	}
}

func TestTwilioAdapter_SendTemplate_Success(t *testing.T) {
	logger.Log = zaptest.NewLogger(t).Named("test")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp:+40721123456", r.FormValue("To"))
		assert.Equal(t, "whatsapp:+40700000000", r.FormValue("From"))
		assert.Equal(t, "HXabc", r.FormValue("ContentSid"))

		var contentVariables map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("ContentVariables")), &contentVariables))
		assert.Equal(t, map[string]string{"1": "Ana", "2": "Concert"}, contentVariables)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM900","status":"queued","price":"-0.0473"}`))
	}))
	defer server.Close()

	adapter := NewTwilioAdapter(server.URL, 5*time.Second)
	result, err := adapter.SendTemplate(context.Background(), testCreds(), SendTemplateRequest{
		To:           "+40721123456",
		TemplateName: "event_reminder",
		ProviderRef:  "HXabc",
		Variables: model.Variables{
			{Name: "name", Value: "Ana"},
			{Name: "event", Value: "Concert"},
		},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "SM900", result.ProviderMessageID)
	require.NotNil(t, result.Cost)
	assert.InDelta(t, 0.0473, *result.Cost, 1e-9)
}

func TestTwilioAdapter_SendTemplate_Rejected(t *testing.T) {
	logger.Log = zaptest.NewLogger(t).Named("test")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":63016,"message":"Failed to send freeform message","status":400}`))
	}))
	defer server.Close()

	adapter := NewTwilioAdapter(server.URL, 5*time.Second)
	result, err := adapter.SendTemplate(context.Background(), testCreds(), SendTemplateRequest{
		To:          "+40721123456",
		ProviderRef: "HXabc",
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "63016", result.ErrorCode)
	assert.Equal(t, "Failed to send freeform message", result.ErrorMessage)
}

func TestTwilioAdapter_SendTemplate_MissingContentSid(t *testing.T) {
	adapter := NewTwilioAdapter("https://api.twilio.com", 5*time.Second)
	_, err := adapter.SendTemplate(context.Background(), testCreds(), SendTemplateRequest{
		To:           "+40721123456",
		TemplateName: "unregistered",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsTemplateNotApprovedError(err))
}

func TestTwilioAdapter_Authenticate_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := NewTwilioAdapter(server.URL, 5*time.Second)
	err := adapter.Authenticate(context.Background(), testCreds())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorizedError(err))
}

func TestTwilioAdapter_ParseWebhook(t *testing.T) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	adapter := NewTwilioAdapter("https://api.twilio.com", 5*time.Second)

	t.Run("json body", func(t *testing.T) {
		event, err := adapter.ParseWebhook([]byte(`{"MessageSid":"SM900","MessageStatus":"delivered"}`))
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, "SM900", event.ProviderMessageID)
		assert.Equal(t, model.MessageStatusDelivered, event.Status)
	})

	t.Run("form body", func(t *testing.T) {
		event, err := adapter.ParseWebhook([]byte("MessageSid=SM901&MessageStatus=failed&ErrorCode=63016"))
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, "SM901", event.ProviderMessageID)
		assert.Equal(t, model.MessageStatusFailed, event.Status)
		assert.Equal(t, "63016", event.ErrorCode)
	})

	t.Run("untracked status is ignored", func(t *testing.T) {
		event, err := adapter.ParseWebhook([]byte(`{"MessageSid":"SM902","MessageStatus":"queued"}`))
		require.NoError(t, err)
		assert.Nil(t, event)
	})

	t.Run("missing sid is rejected", func(t *testing.T) {
		_, err := adapter.ParseWebhook([]byte(`{"MessageStatus":"delivered"}`))
		require.Error(t, err)
		assert.True(t, apperrors.IsBadRequestError(err))
	})
}

func TestTwilioAdapter_VerifySignature(t *testing.T) {
	adapter := NewTwilioAdapter("https://api.twilio.com", 5*time.Second)
	callbackURL := "https://example.com/v1/webhook/tenant-1"
	form := url.Values{}
	form.Set("MessageSid", "SM900")
	form.Set("MessageStatus", "delivered")

	// Computed with the scheme itself; the point is round-trip consistency
	// plus rejection of tampered input.
	mac := hmac.New(sha1.New, []byte("secret"))
	mac.Write([]byte(callbackURL + "MessageSid" + "SM900" + "MessageStatus" + "delivered"))
	valid := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.True(t, adapter.VerifySignature(testCreds(), callbackURL, form, valid))

	tampered := url.Values{}
	tampered.Set("MessageSid", "SM901")
	tampered.Set("MessageStatus", "delivered")
	assert.False(t, adapter.VerifySignature(testCreds(), callbackURL, tampered, valid))
	assert.False(t, adapter.VerifySignature(testCreds(), callbackURL, form, ""))
	assert.False(t, adapter.VerifySignature(Credentials{}, callbackURL, form, valid))
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry("mock")
	mock := NewMockAdapter()
	registry.Register(mock)

	t.Run("resolve by key", func(t *testing.T) {
		adapter, err := registry.Resolve("mock")
		require.NoError(t, err)
		assert.Equal(t, "mock", adapter.Name())
	})

	t.Run("empty key falls back to default", func(t *testing.T) {
		adapter, err := registry.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "mock", adapter.Name())
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := registry.Resolve("nonexistent")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrNoAdapter)
	})
}

func TestMockAdapter(t *testing.T) {
	adapter := NewMockAdapter()
	ctx := context.Background()

	result, err := adapter.SendTemplate(ctx, Credentials{"provider": "mock"}, SendTemplateRequest{
		To: "+40721123456", TemplateName: "order_confirmation",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.ProviderMessageID)
	require.NotNil(t, result.Cost)
	assert.Len(t, adapter.Sent(), 1)

	adapter.FailPhone("+40799999999", "63024")
	result, err = adapter.SendTemplate(ctx, Credentials{"provider": "mock"}, SendTemplateRequest{
		To: "+40799999999", TemplateName: "order_confirmation",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "63024", result.ErrorCode)
	assert.Len(t, adapter.Sent(), 1)

	event, err := adapter.ParseWebhook([]byte(`{"message_id":"mock-1","status":"read"}`))
	require.NoError(t, err)
	assert.Equal(t, "mock-1", event.ProviderMessageID)
	assert.Equal(t, "read", event.Status)
}
