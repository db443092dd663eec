// Package mailer delivers window reports to shore over the SendGrid v3 API.
// The ship's satellite link drops and throttles without warning, so every
// send classifies its failure as transient or permanent; retry policy lives
// with the dispatcher, not here.
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rapidkrill/internal/config"
	"rapidkrill/internal/logging"
	"rapidkrill/internal/services"
)

const userAgent = "RapidKrill-Go/0.1.0"

// Message is one outbound report email.
type Message struct {
	Subject        string
	Body           string
	Recipients     []string
	AttachmentName string
	Attachment     string
}

// Service sends report messages. Send errors carry a transient or permanent
// marker so callers can decide whether another attempt makes sense.
type Service interface {
	Send(ctx context.Context, msg Message) error
}

// NewService builds a mail service backed by SendGrid when an API key is
// configured. Without a key a noop implementation is returned that logs the
// subject and drops the message, which keeps interactive runs working on
// machines with no credentials.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	key := strings.TrimSpace(cfg.Mail.APIKey)
	if key == "" {
		return &noopService{logger: logging.NewComponentLogger(logger, "mailer")}
	}

	timeout := time.Duration(cfg.Mail.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimRight(cfg.Mail.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}

	return &sendgridService{
		endpoint: baseURL + "/v3/mail/send",
		apiKey:   key,
		sender:   cfg.Report.Sender,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "mailer"),
	}
}

type sendgridService struct {
	endpoint string
	apiKey   string
	sender   string
	client   *http.Client
	logger   *slog.Logger
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgAttachment struct {
	Content     string `json:"content"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
	Attachments      []sgAttachment      `json:"attachments,omitempty"`
}

func (s *sendgridService) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return services.Wrap(services.ErrPermanent, "mailer", "send", "no recipients", nil)
	}

	to := make([]sgAddress, 0, len(msg.Recipients))
	for _, addr := range msg.Recipients {
		to = append(to, sgAddress{Email: addr})
	}
	payload := sgMail{
		Personalizations: []sgPersonalization{{To: to}},
		From:             sgAddress{Email: s.sender},
		Subject:          msg.Subject,
		Content:          []sgContent{{Type: "text/plain", Value: msg.Body}},
	}
	if msg.Attachment != "" {
		payload.Attachments = []sgAttachment{{
			Content:     base64.StdEncoding.EncodeToString([]byte(msg.Attachment)),
			Type:        "text/csv",
			Filename:    msg.AttachmentName,
			Disposition: "attachment",
		}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "mailer", "encode request", msg.Subject, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrPermanent, "mailer", "build request", msg.Subject, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrTransient, "mailer", "send", msg.Subject, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Info("report dispatched", logging.String("subject", msg.Subject))
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	cause := fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	marker := services.ErrTransient
	if permanentStatus(resp.StatusCode) {
		marker = services.ErrPermanent
	}
	return services.Wrap(marker, "mailer", "send", msg.Subject, cause)
}

// permanentStatus reports whether an HTTP status means a retry can never
// succeed. 429 stays transient: the relay is asking us to slow down.
func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

type noopService struct {
	logger *slog.Logger
}

func (n *noopService) Send(_ context.Context, msg Message) error {
	n.logger.Info("mail relay not configured, report dropped",
		logging.String("subject", msg.Subject),
		logging.Int("recipients", len(msg.Recipients)))
	return nil
}
