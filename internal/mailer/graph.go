package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"careers-relay/internal/config"
	"careers-relay/internal/models"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
)

const (
	graphAPIBase   = "https://graph.microsoft.com/v1.0"
	graphTokenBase = "https://login.microsoftonline.com"
)

// Graph sends through Microsoft Graph sendMail with client credentials.
type Graph struct {
	cfg       config.MailConfig
	client    *http.Client
	log       *zap.Logger
	apiBase   string
	tokenBase string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

type oAuthTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type graphMessage struct {
	Message struct {
		Subject      string            `json:"subject"`
		Body         graphBody         `json:"body"`
		ToRecipients []graphRecipient  `json:"toRecipients"`
		ReplyTo      []graphRecipient  `json:"replyTo,omitempty"`
		Attachments  []graphAttachment `json:"attachments,omitempty"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

func NewGraph(cfg config.MailConfig, log *zap.Logger) *Graph {
	log = log.Named("graph")
	log.Debug("graph client initialised", zap.String("tenant_id", cfg.TenantID), zap.String("client_id", cfg.ClientID))
	return &Graph{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		log:       log,
		apiBase:   graphAPIBase,
		tokenBase: graphTokenBase,
	}
}

func (g *Graph) Send(ctx context.Context, email *models.OutboundEmail) error {
	if err := checkEmail(email); err != nil {
		return err
	}

	accessToken, err := g.token(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	var msg graphMessage
	msg.Message.Subject = email.Subject
	msg.Message.Body = graphBody{ContentType: "HTML", Content: email.HTMLBody}
	for _, to := range email.To {
		msg.Message.ToRecipients = append(msg.Message.ToRecipients, newGraphRecipient(to))
	}
	if email.ReplyTo != "" {
		msg.Message.ReplyTo = []graphRecipient{newGraphRecipient(email.ReplyTo)}
	}
	for _, a := range email.Attachments {
		msg.Message.Attachments = append(msg.Message.Attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         a.Filename,
			ContentType:  a.ContentType,
			ContentBytes: a.Content,
		})
	}
	msg.SaveToSentItems = true

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email message: %w", err)
	}

	sendURL := fmt.Sprintf("%s/users/%s/sendMail", g.apiBase, url.PathEscape(bareAddress(email.From)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		if resp.StatusCode == http.StatusUnauthorized {
			g.invalidate()
		}
		return statusError("graph", resp)
	}
	return nil
}

// token returns a cached access token, fetching a new one shortly before expiry.
func (g *Graph) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accessToken != "" && time.Now().Before(g.expiresAt) {
		return g.accessToken, nil
	}

	form := url.Values{
		"client_id":     {g.cfg.ClientID},
		"client_secret": {g.cfg.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
		"grant_type":    {"client_credentials"},
	}
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", g.tokenBase, url.PathEscape(g.cfg.TenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("failed to get token, status: %d, response: %s", resp.StatusCode, string(body))
	}

	var tokenResponse oAuthTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access token")
	}

	lifetime := time.Duration(tokenResponse.ExpiresIn) * time.Second
	if lifetime <= time.Minute {
		lifetime = 0
	} else {
		lifetime -= time.Minute
	}
	g.accessToken = tokenResponse.AccessToken
	g.expiresAt = time.Now().Add(lifetime)
	return g.accessToken, nil
}

func (g *Graph) invalidate() {
	g.mu.Lock()
	g.accessToken = ""
	g.mu.Unlock()
}

func newGraphRecipient(address string) graphRecipient {
	var r graphRecipient
	r.EmailAddress.Address = bareAddress(address)
	return r
}

// bareAddress strips a display name ("Careers <jobs@example.com>").
func bareAddress(address string) string {
	if parsed, err := mail.ParseAddress(address); err == nil {
		return parsed.Address
	}
	return strings.TrimSpace(address)
}
