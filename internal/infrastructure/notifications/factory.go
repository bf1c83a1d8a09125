package notifications

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	awsclient "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/aws"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/config"
)

const (
	DriverLog      = "log"
	DriverSMTP     = "smtp"
	DriverSES      = "ses"
	DriverSNS      = "sns"
	DriverWhatsApp = "whatsapp"
)

// NewGateway builds the channel router from configuration
func NewGateway(ctx context.Context, cfg *config.Config) (providers.NotificationGateway, error) {
	email, err := newEmailGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sms, err := newSMSGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewChannelRouter(map[entities.NotificationChannel]providers.NotificationGateway{
		entities.ChannelEmail: email,
		entities.ChannelSMS:   sms,
	}), nil
}

func newEmailGateway(ctx context.Context, cfg *config.Config) (providers.NotificationGateway, error) {
	n := cfg.Notification
	switch n.EmailDriver {
	case DriverLog, "":
		return NewLogSender(), nil
	case DriverSMTP:
		return NewSMTPSender(cfg.SMTP, n.FromAddress, n.FromName)
	case DriverSES:
		awsCfg, err := awsclient.LoadConfig(ctx, &cfg.AWS)
		if err != nil {
			return nil, err
		}
		return NewSESSender(ses.NewFromConfig(awsCfg), n.FromAddress, n.FromName), nil
	default:
		return nil, fmt.Errorf("unknown email driver %q", n.EmailDriver)
	}
}

func newSMSGateway(ctx context.Context, cfg *config.Config) (providers.NotificationGateway, error) {
	n := cfg.Notification
	switch n.SMSDriver {
	case DriverLog, "":
		return NewLogSender(), nil
	case DriverSNS:
		awsCfg, err := awsclient.LoadConfig(ctx, &cfg.AWS)
		if err != nil {
			return nil, err
		}
		return NewSNSSender(sns.NewFromConfig(awsCfg), n.SMSSenderID), nil
	case DriverWhatsApp:
		return NewWhatsAppCloudSender(n.WhatsAppAccessToken, n.WhatsAppPhoneNumberID, n.WhatsAppBaseURL)
	default:
		return nil, fmt.Errorf("unknown sms driver %q", n.SMSDriver)
	}
}
