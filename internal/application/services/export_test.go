package services

import (
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/retry"
)

func (m *BookingStateMachine) SetClock(now func() time.Time) { m.now = now }
func (o *BookingOrchestrator) SetClock(now func() time.Time) { o.now = now }
func (d *NotificationDispatcher) SetClock(now func() time.Time) { d.now = now }
func (w *WebhookIngestor) SetClock(now func() time.Time) { w.now = now }
func (s *ReminderSweeper) SetClock(now func() time.Time) { s.now = now }
func (s *CompletionSweeper) SetClock(now func() time.Time) { s.now = now }
func (p *WebhookLedgerPurger) SetClock(now func() time.Time) { p.now = now }
func (r *AuditRecorder) SetClock(now func() time.Time) { r.now = now }

func (r *AuditRecorder) SetRetryConfig(cfg retry.Config) { r.retryCfg = cfg }
