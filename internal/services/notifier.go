package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/declinewatch/declinewatch-go/internal/metrics"
	"github.com/declinewatch/declinewatch-go/internal/models"
	"github.com/declinewatch/declinewatch-go/internal/telemetry"
)

// NotifierService pushes high-severity audit findings to a Telegram chat.
// Without a bot token it degrades to a no-op so the scheduler never has to
// care whether alerting is configured.
type NotifierService struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Logger
	tracer *telemetry.BusinessTracer
}

// NewNotifierService builds the notifier. An empty token or chat ID leaves
// it disabled; a bad token or unparseable chat ID is logged and likewise
// leaves it disabled rather than failing startup.
func NewNotifierService(botToken, chatID string, logger *logrus.Logger) *NotifierService {
	if logger == nil {
		logger = logrus.New()
	}
	n := &NotifierService{logger: logger, tracer: telemetry.NewBusinessTracer()}

	if botToken == "" || chatID == "" {
		logger.Info("Telegram notifier disabled, no bot token or chat ID configured")
		return n
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		logger.WithError(err).Warn("Invalid telegram chat ID, notifier disabled")
		return n
	}

	b, err := bot.New(botToken)
	if err != nil {
		logger.WithError(err).Warn("Telegram bot init failed, notifier disabled")
		return n
	}

	n.bot = b
	n.chatID = id
	logger.Info("Telegram notifier ready")
	return n
}

// Enabled reports whether alerts will actually be sent.
func (n *NotifierService) Enabled() bool {
	return n.bot != nil
}

// NotifyAuditFindings alerts the configured chat about every summary whose
// highest flag severity is HIGH. Summaries without HIGH flags are dropped
// silently; routine LOW and MEDIUM findings belong in the review queue,
// not in chat.
func (n *NotifierService) NotifyAuditFindings(ctx context.Context, summaries []models.FiscalSummary) error {
	high := make([]models.FiscalSummary, 0)
	for _, s := range summaries {
		if s.HighestSeverity() == models.SeverityHigh {
			high = append(high, s)
		}
	}
	if len(high) == 0 {
		return nil
	}

	if !n.Enabled() {
		n.logger.WithField("fields", len(high)).Debug("Telegram notifier disabled, dropping high-severity alert")
		return nil
	}

	ctx, span := n.tracer.TraceNotification(ctx, "telegram", string(models.SeverityHigh))
	defer span.Finish()

	start := time.Now()
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      formatAuditAlert(high),
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		n.tracer.RecordNotificationResult(span, false, time.Since(start))
		metrics.IncNotification(metrics.ResultError)
		return fmt.Errorf("send telegram alert: %w", err)
	}

	n.tracer.RecordNotificationResult(span, true, time.Since(start))
	metrics.IncNotification(metrics.ResultSuccess)
	n.logger.WithField("fields", len(high)).Info("High-severity audit alert sent")
	return nil
}

// formatAuditAlert renders the Markdown alert body. Field names arrive
// upper-cased from PPRS exports and read better title-cased in chat.
func formatAuditAlert(summaries []models.FiscalSummary) string {
	title := cases.Title(language.BritishEnglish)

	top := summaries
	if len(summaries) > 3 {
		top = summaries[:3]
	}

	var b strings.Builder
	b.WriteString("🚨 *Decline Audit Alert*\n\n")
	fmt.Fprintf(&b, "Found %d fields with HIGH severity governance flags:\n\n", len(summaries))

	for i, s := range top {
		high := 0
		for _, f := range s.Flags {
			if f.Severity == models.SeverityHigh {
				high++
			}
		}
		fmt.Fprintf(&b, "*%d. %s*\n", i+1, title.String(s.FieldName))
		fmt.Fprintf(&b, "🚩 Flags: *%d* (HIGH: %d)\n", len(s.Flags), high)
		fmt.Fprintf(&b, "💷 Revenue at risk: *£%s*\n", s.TotalRevenueAtRisk.StringFixed(2))
		fmt.Fprintf(&b, "📉 Avg variance: %.1f%% over %d months\n", s.AvgMonthlyVariancePct, s.MonthsAnalysed)
		b.WriteString("\n")
	}

	if len(summaries) > 3 {
		fmt.Fprintf(&b, "...and %d more fields\n\n", len(summaries)-3)
	}

	b.WriteString("Review the reconciliation tables before the next return is filed.")
	return b.String()
}
