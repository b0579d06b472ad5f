package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bugsneak/pkg/capture"
	"github.com/ekaya-inc/bugsneak/pkg/config"
	"github.com/ekaya-inc/bugsneak/pkg/logging"
	"github.com/ekaya-inc/bugsneak/pkg/models"
	"github.com/ekaya-inc/bugsneak/pkg/retry"
)

// NewGroupEvent is the JSON body posted to the generic webhook.
type NewGroupEvent struct {
	Event      string    `json:"event"`
	ID         int64     `json:"id"`
	ErrorType  string    `json:"error_type"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	File       string    `json:"file"`
	Line       int       `json:"line"`
	Culprit    string    `json:"culprit"`
	ShareToken string    `json:"share_token"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationService announces new error groups on Slack and/or a JSON webhook.
// Deliveries run in the background and never block the caller.
type NotificationService struct {
	cfg        config.NotifyConfig
	httpClient *http.Client
	retryCfg   *retry.Config
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(cfg config.NotifyConfig, logger *zap.Logger) *NotificationService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.Timeout = timeout

	return &NotificationService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retry.WebhookConfig(),
		logger:     logger.Named("notification-service"),
	}
}

var _ capture.Notifier = (*NotificationService)(nil)

// NotifyNewGroup starts the deliveries for log and returns immediately.
func (s *NotificationService) NotifyNewGroup(ctx context.Context, log *models.ErrorLog) {
	if log == nil || !s.cfg.Enabled() {
		return
	}

	event := newGroupEvent(log)

	if s.cfg.SlackWebhookURL != "" {
		s.deliver(ctx, "slack", func(ctx context.Context) error {
			return s.postSlack(ctx, event)
		})
	}
	if s.cfg.WebhookURL != "" {
		s.deliver(ctx, "webhook", func(ctx context.Context) error {
			return s.postWebhook(ctx, event)
		})
	}
}

// Wait blocks until in-flight deliveries finish.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) deliver(ctx context.Context, channel string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Recovered panic in notification delivery",
					zap.String("channel", channel), zap.Any("panic", r))
			}
		}()

		// Retries included, one delivery never outlives a few timeouts.
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*s.cfg.Timeout)
		defer cancel()

		if err := fn(deliverCtx); err != nil {
			s.logger.Warn("Failed to deliver new error group notification",
				zap.String("channel", channel),
				zap.String("error", logging.SanitizeError(err)))
		}
	}()
}

func (s *NotificationService) postSlack(ctx context.Context, event NewGroupEvent) error {
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("New error group: %s", logging.TruncateString(event.Message, 150)),
		Attachments: []slack.Attachment{
			{
				Color: severityColor(event.Severity),
				Title: event.ErrorType,
				Text:  logging.TruncateString(event.Message, 1000),
				Fields: []slack.AttachmentField{
					{Title: "Location", Value: fmt.Sprintf("%s:%d", event.File, event.Line)},
					{Title: "Culprit", Value: event.Culprit, Short: true},
					{Title: "Severity", Value: event.Severity, Short: true},
				},
				Footer: "bugsneak #" + strconv.FormatInt(event.ID, 10),
				Ts:     json.Number(strconv.FormatInt(event.CreatedAt.Unix(), 10)),
			},
		},
	}

	return retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		err := slack.PostWebhookCustomHTTPContext(ctx, s.cfg.SlackWebhookURL, s.httpClient, msg)
		var statusErr interface{ HTTPStatusCode() int }
		if errors.As(err, &statusErr) {
			return &retry.StatusError{StatusCode: statusErr.HTTPStatusCode()}
		}
		return err
	})
}

func (s *NotificationService) postWebhook(ctx context.Context, event NewGroupEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	return retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &retry.StatusError{StatusCode: resp.StatusCode}
		}
		return nil
	})
}

func newGroupEvent(log *models.ErrorLog) NewGroupEvent {
	return NewGroupEvent{
		Event:      "new_error_group",
		ID:         log.ID,
		ErrorType:  log.ErrorType,
		Severity:   log.Severity,
		Message:    log.Message,
		File:       log.FilePath,
		Line:       log.LineNumber,
		Culprit:    log.Culprit,
		ShareToken: log.ShareToken,
		CreatedAt:  log.CreatedAt,
	}
}

func severityColor(severity string) string {
	switch severity {
	case "Fatal", "Memory":
		return "danger"
	case "Warning":
		return "warning"
	default:
		return "#439FE0"
	}
}
