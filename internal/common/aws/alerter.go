// internal/common/aws/alerter.go
package aws

import (
	"context"
	"errors"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"leadgen-workers/internal/common/config"
	apperrors "leadgen-workers/internal/common/errors"
	"leadgen-workers/internal/common/logger"
)

// Notifier delivers one alert over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, subject, body string) error
}

// Alerter fans an alert out to every configured notifier. Delivery keeps
// going after a failed notifier; the failures are joined.
type Alerter struct {
	notifiers []Notifier
	logger    logger.Logger
}

func NewAlerter(log logger.Logger, notifiers ...Notifier) *Alerter {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Alerter{notifiers: notifiers, logger: log}
}

// NewAlerterFromConfig builds SNS and SES notifiers for whatever the
// diagnostics section configures. No targets yields an alerter that does
// nothing.
func NewAlerterFromConfig(ctx context.Context, cfg config.DiagnosticsConfig, log logger.Logger) (*Alerter, error) {
	if cfg.SNSTopicARN == "" && cfg.AlertEmailTo == "" {
		return NewAlerter(log), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}

	var notifiers []Notifier
	if cfg.SNSTopicARN != "" {
		notifiers = append(notifiers, NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.SNSTopicARN))
	}
	if cfg.AlertEmailTo != "" && cfg.AlertEmailFrom != "" {
		notifiers = append(notifiers, NewSESNotifier(ses.NewFromConfig(awsCfg), cfg.AlertEmailFrom, cfg.AlertEmailTo))
	}
	return NewAlerter(log, notifiers...), nil
}

func (a *Alerter) Enabled() bool {
	return a != nil && len(a.notifiers) > 0
}

func (a *Alerter) Alert(ctx context.Context, subject, body string) error {
	if !a.Enabled() {
		return nil
	}
	var errs []error
	for _, n := range a.notifiers {
		if err := n.Notify(ctx, subject, body); err != nil {
			a.logger.Error("alert delivery failed", map[string]interface{}{
				"channel": n.Name(),
				"error":   err.Error(),
			})
			errs = append(errs, apperrors.NewNotificationSendFailedError(n.Name(), err))
			continue
		}
		a.logger.Info("alert delivered", map[string]interface{}{"channel": n.Name()})
	}
	return errors.Join(errs...)
}
