package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/internlink/auth-api/pkg/logger"
)

// AWSSESLockoutNotifier sends account-lock security notices via AWS SES.
// It implements LockoutNotifier; delivery failures are the caller's to log
// and never affect the login pipeline.
type AWSSESLockoutNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	supportURL  string
	logger      *slog.Logger
}

// NewAWSSESLockoutNotifier creates a new SES-backed notifier
func NewAWSSESLockoutNotifier(region, fromAddress, supportURL string, logger *slog.Logger) (*AWSSESLockoutNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESLockoutNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		supportURL:  supportURL,
		logger:      logger,
	}, nil
}

// SendLockNotice tells the account owner their account was temporarily
// locked after repeated failed sign-in attempts.
func (s *AWSSESLockoutNotifier) SendLockNotice(ctx context.Context, email string, lockedUntil time.Time) error {
	textBody := fmt.Sprintf(
		"Your account was temporarily locked after several failed sign-in attempts.\n\n"+
			"Sign-in will be available again at %s.\n\n"+
			"If this wasn't you, we recommend resetting your password once the lock expires. "+
			"Need help? Visit %s.\n",
		lockedUntil.UTC().Format(time.RFC1123), s.supportURL)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String("Security alert: your account was temporarily locked"),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.sesClient.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send lock notice: %w", err)
	}

	s.logger.Info("lock notice sent", slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}
