package bsp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/apperrors"
	"github.com/andreiandoo/epas-sub045/internal/model"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
)

const twilioAPIVersion = "2010-04-01"

// TwilioAdapter sends WhatsApp template messages through the Twilio Content
// API and parses Twilio status callbacks.
type TwilioAdapter struct {
	client *resty.Client
}

// NewTwilioAdapter creates the adapter against the given API base URL
// (normally https://api.twilio.com).
func NewTwilioAdapter(baseURL string, timeout time.Duration) *TwilioAdapter {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry transport errors and server-side failures only. 4xx
			// responses are final answers about this message.
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &TwilioAdapter{client: client}
}

// Name returns the registry key of the adapter.
func (a *TwilioAdapter) Name() string {
	return "twilio"
}

// twilioMessageResponse is the subset of the Messages resource this engine
// reads.
type twilioMessageResponse struct {
	Sid          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	Price        *string `json:"price"`
}

// twilioErrorResponse is Twilio's error envelope for non-2xx answers.
type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Authenticate fetches the account resource to verify the credentials.
func (a *TwilioAdapter) Authenticate(ctx context.Context, creds Credentials) error {
	sid := creds[CredAccountSID]
	token := creds[CredAuthToken]
	if sid == "" || token == "" {
		return fmt.Errorf("%w: missing twilio account_sid or auth_token", apperrors.ErrUnauthorized)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetBasicAuth(sid, token).
		Get(fmt.Sprintf("/%s/Accounts/%s.json", twilioAPIVersion, sid))
	if err != nil {
		return fmt.Errorf("%w: twilio auth check failed: %w", apperrors.ErrProvider, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return fmt.Errorf("%w: twilio rejected credentials for %s", apperrors.ErrUnauthorized, sid)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: twilio auth check returned %d", apperrors.ErrProvider, resp.StatusCode())
	}
	return nil
}

// SendTemplate posts one message to the Twilio Messages resource. Template
// variables are positional, keyed "1".."n" in ContentVariables.
func (a *TwilioAdapter) SendTemplate(ctx context.Context, creds Credentials, req SendTemplateRequest) (*SendResult, error) {
	sid := creds[CredAccountSID]
	token := creds[CredAuthToken]
	from := creds[CredFromNumber]
	if sid == "" || token == "" || from == "" {
		return nil, fmt.Errorf("%w: incomplete twilio credentials", apperrors.ErrUnauthorized)
	}
	if req.ProviderRef == "" {
		return nil, fmt.Errorf("%w: template %s has no twilio content sid", apperrors.ErrTemplateNotApproved, req.TemplateName)
	}

	contentVariables := map[string]string{}
	for i, variable := range req.Variables {
		contentVariables[strconv.Itoa(i+1)] = variable.Value
	}
	contentVariablesJSON, err := json.Marshal(contentVariables)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode content variables: %w", apperrors.ErrBadRequest, err)
	}

	var (
		success twilioMessageResponse
		failure twilioErrorResponse
	)
	resp, err := a.client.R().
		SetContext(ctx).
		SetBasicAuth(sid, token).
		SetFormData(map[string]string{
			"To":               "whatsapp:" + req.To,
			"From":             "whatsapp:" + from,
			"ContentSid":       req.ProviderRef,
			"ContentVariables": string(contentVariablesJSON),
		}).
		SetResult(&success).
		SetError(&failure).
		Post(fmt.Sprintf("/%s/Accounts/%s/Messages.json", twilioAPIVersion, sid))
	if err != nil {
		return nil, fmt.Errorf("%w: twilio send failed: %w", apperrors.ErrProvider, err)
	}

	if resp.IsError() {
		// A rejected message is an outcome, not a transport error.
		return &SendResult{
			Success:      false,
			ErrorCode:    strconv.Itoa(failure.Code),
			ErrorMessage: failure.Message,
		}, nil
	}

	result := &SendResult{
		Success:           true,
		ProviderMessageID: success.Sid,
	}
	if success.Status == "failed" || success.Status == "undelivered" {
		result.Success = false
		if success.ErrorCode != nil {
			result.ErrorCode = strconv.Itoa(*success.ErrorCode)
		}
		if success.ErrorMessage != nil {
			result.ErrorMessage = *success.ErrorMessage
		}
	}
	if success.Price != nil {
		if price, parseErr := strconv.ParseFloat(*success.Price, 64); parseErr == nil {
			// Twilio reports prices as negative charges.
			if price < 0 {
				price = -price
			}
			result.Cost = &price
		}
	}
	return result, nil
}

// twilioStatusMap translates Twilio delivery statuses onto the neutral
// message statuses. Absent keys carry no tracked transition.
var twilioStatusMap = map[string]string{
	"sent":        model.MessageStatusSent,
	"delivered":   model.MessageStatusDelivered,
	"read":        model.MessageStatusRead,
	"failed":      model.MessageStatusFailed,
	"undelivered": model.MessageStatusFailed,
}

// VerifySignature checks the X-Twilio-Signature header of a callback:
// base64 HMAC-SHA1 with the auth token over the full callback URL with the
// form parameters appended in sorted key order.
func (a *TwilioAdapter) VerifySignature(creds Credentials, callbackURL string, form url.Values, signature string) bool {
	token := creds[CredAuthToken]
	if token == "" || signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(callbackURL)
	for _, key := range keys {
		payload.WriteString(key)
		payload.WriteString(form.Get(key))
	}

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseWebhook decodes a Twilio status callback. JSON bodies are tried
// first, then the form encoding Twilio posts by default.
func (a *TwilioAdapter) ParseWebhook(payload []byte) (*StatusEvent, error) {
	fields := map[string]string{}

	var asJSON map[string]interface{}
	if err := json.Unmarshal(payload, &asJSON); err == nil {
		for key, value := range asJSON {
			if s, ok := value.(string); ok {
				fields[key] = s
			}
		}
	} else {
		values, parseErr := url.ParseQuery(string(payload))
		if parseErr != nil {
			return nil, fmt.Errorf("%w: unparseable twilio callback: %w", apperrors.ErrBadRequest, parseErr)
		}
		for key := range values {
			fields[key] = values.Get(key)
		}
	}

	messageSid := fields["MessageSid"]
	if messageSid == "" {
		messageSid = fields["SmsSid"]
	}
	if messageSid == "" {
		return nil, fmt.Errorf("%w: twilio callback carries no message sid", apperrors.ErrBadRequest)
	}

	status, tracked := twilioStatusMap[fields["MessageStatus"]]
	if !tracked {
		logger.Log.Debug("Ignoring untracked twilio status",
			zap.String("message_sid", messageSid),
			zap.String("status", fields["MessageStatus"]))
		return nil, nil
	}

	return &StatusEvent{
		ProviderMessageID: messageSid,
		Status:            status,
		ErrorCode:         fields["ErrorCode"],
		ErrorMessage:      fields["ErrorMessage"],
	}, nil
}
