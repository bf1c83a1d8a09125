package services

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
)

const (
	notificationDateLayout = "Monday, 2 January 2006"
	notificationTimeLayout = "3:04 PM"
)

// NotificationData is the template context for every notification
type NotificationData struct {
	BookingNumber      string
	UserName           string
	CenterName         string
	CenterAddress      string
	CenterPhone        string
	ServiceName        string
	Date               string
	Time               string
	Timezone           string
	CancellationReason string
	RescheduleURL      string
	CancelURL          string
}

type notificationTemplate struct {
	subject *template.Template
	body    *template.Template
}

var emailTemplates = map[entities.NotificationKind]notificationTemplate{
	entities.NotificationConfirmation: mustNotificationTemplate("email-confirmation",
		`Booking {{.BookingNumber}} received`,
		`Dear {{.UserName}},

Thank you for booking a visit to {{.CenterName}}.

Booking number: {{.BookingNumber}}
{{- if .ServiceName}}
Service: {{.ServiceName}}{{end}}
Date: {{.Date}}
Time: {{.Time}} ({{.Timezone}})
Address: {{.CenterAddress}}
{{- if .RescheduleURL}}

Need a different time? {{.RescheduleURL}}{{end}}

If you have any questions, call us at {{.CenterPhone}}.

ElderCare SG`),

	entities.NotificationReminder: mustNotificationTemplate("email-reminder",
		`Reminder: your visit to {{.CenterName}} on {{.Date}}`,
		`Dear {{.UserName}},

This is a reminder of your upcoming visit.

Booking number: {{.BookingNumber}}
Date: {{.Date}}
Time: {{.Time}} ({{.Timezone}})
Address: {{.CenterAddress}}
{{- if .CancelURL}}

Can no longer make it? {{.CancelURL}}{{end}}

ElderCare SG`),

	entities.NotificationCancellation: mustNotificationTemplate("email-cancellation",
		`Booking {{.BookingNumber}} cancelled`,
		`Dear {{.UserName}},

Your visit to {{.CenterName}} on {{.Date}} at {{.Time}} has been cancelled.
{{- if .CancellationReason}}

Reason: {{.CancellationReason}}{{end}}

We hope to see you another time. Call us at {{.CenterPhone}} to rebook.

ElderCare SG`),
}

var smsTemplates = map[entities.NotificationKind]notificationTemplate{
	entities.NotificationConfirmation: mustNotificationTemplate("sms-confirmation", ``,
		`ElderCare SG: booking {{.BookingNumber}} at {{.CenterName}} on {{.Date}}, {{.Time}} received.`),
	entities.NotificationReminder: mustNotificationTemplate("sms-reminder", ``,
		`ElderCare SG reminder: {{.CenterName}} on {{.Date}}, {{.Time}}. Ref {{.BookingNumber}}.`),
	entities.NotificationCancellation: mustNotificationTemplate("sms-cancellation", ``,
		`ElderCare SG: booking {{.BookingNumber}} on {{.Date}} has been cancelled.`),
}

func mustNotificationTemplate(name, subject, body string) notificationTemplate {
	return notificationTemplate{
		subject: template.Must(template.New(name + "-subject").Parse(subject)),
		body:    template.Must(template.New(name + "-body").Parse(body)),
	}
}

// NewNotificationData builds the template context, formatting the slot in loc
func NewNotificationData(booking *entities.Booking, user *entities.User, center *entities.Center, service *entities.Service, loc *time.Location) NotificationData {
	at := booking.ScheduledAt.In(loc)
	data := NotificationData{
		BookingNumber: booking.BookingNumber,
		UserName:      user.Name,
		CenterName:    center.Name,
		CenterAddress: center.Address,
		CenterPhone:   center.Phone,
		Date:          at.Format(notificationDateLayout),
		Time:          at.Format(notificationTimeLayout),
		Timezone:      loc.String(),
	}
	if service != nil {
		data.ServiceName = service.Name
	}
	if booking.CancellationReason != nil {
		data.CancellationReason = *booking.CancellationReason
	}
	if booking.ExternalRef != nil {
		data.RescheduleURL = booking.ExternalRef.RescheduleURL
		data.CancelURL = booking.ExternalRef.CancelURL
	}
	return data
}

// RenderNotification renders the subject and body for a channel and kind
func RenderNotification(channel entities.NotificationChannel, kind entities.NotificationKind, data NotificationData) (string, string, error) {
	set := emailTemplates
	if channel == entities.ChannelSMS {
		set = smsTemplates
	}
	tmpl, ok := set[kind]
	if !ok {
		return "", "", fmt.Errorf("no %s template for %s", channel, kind)
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s %s subject: %w", channel, kind, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s %s body: %w", channel, kind, err)
	}
	return strings.TrimSpace(subject.String()), strings.TrimSpace(body.String()), nil
}
