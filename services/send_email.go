package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rpupo63/portfolio-api/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendEmailRequest represents the request payload for Resend API
type ResendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Html    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// ResendEmailResponse represents the response from Resend API
type ResendEmailResponse struct {
	ID string `json:"id"`
}

// ResendErrorResponse represents an error response from Resend API
type ResendErrorResponse struct {
	Message string `json:"message"`
}

// ResendClient sends mail through the Resend HTTP API.
type ResendClient struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

func NewResendClient(apiKey, from string) *ResendClient {
	return &ResendClient{
		apiKey:   apiKey,
		from:     from,
		endpoint: resendEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   log.With().Str("component", "resend").Logger(),
	}
}

// SendEmail sends an HTML email to recipients. replyTo may be empty.
func (c *ResendClient) SendEmail(ctx context.Context, subject, body, replyTo string, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	if c.apiKey == "" {
		return fmt.Errorf("RESEND_API_KEY is not configured")
	}
	if c.from == "" {
		return fmt.Errorf("RESEND_FROM_EMAIL is not configured")
	}

	payload := ResendEmailRequest{
		From:    c.from,
		To:      recipients,
		Subject: subject,
		Html:    body,
		ReplyTo: replyTo,
	}
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create Resend API request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to Resend API: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read Resend API response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ResendErrorResponse
		if err := json.Unmarshal(bodyBytes, &errorResp); err == nil && errorResp.Message != "" {
			return fmt.Errorf("resend API error (status %d): %s", resp.StatusCode, errorResp.Message)
		}
		return fmt.Errorf("resend API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var emailResponse ResendEmailResponse
	if err := json.Unmarshal(bodyBytes, &emailResponse); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse Resend email response, but email was sent")
	} else {
		c.logger.Info().Str("emailId", emailResponse.ID).Msg("Successfully sent email via Resend")
	}
	return nil
}

type emailSender interface {
	SendEmail(ctx context.Context, subject, body, replyTo string, recipients []string) error
}

// ContactNotifier forwards contact submissions to the site owner by email.
type ContactNotifier struct {
	sender emailSender
	to     []string
}

func NewContactNotifier(sender emailSender, to ...string) *ContactNotifier {
	return &ContactNotifier{sender: sender, to: to}
}

func (n *ContactNotifier) Notify(ctx context.Context, in models.ContactInput) error {
	subject := fmt.Sprintf("New contact message from %s", in.Name)
	body := fmt.Sprintf("<p><strong>%s</strong> &lt;%s&gt; wrote:</p><p>%s</p>",
		html.EscapeString(in.Name),
		html.EscapeString(in.Email),
		strings.ReplaceAll(html.EscapeString(in.Message), "\n", "<br>"),
	)
	return n.sender.SendEmail(ctx, subject, body, in.Email, n.to)
}
