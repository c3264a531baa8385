// Package escalation implements the Escalation notifier (C12): formatted
// Slack notifications for remediation outcomes, cooldown-gated per alert
// identity. Grounded on original_source/app/discord_notifier.py's embed
// structure, ported onto slack-go/slack's attachment API since that is the
// chat dependency actually carried in go.mod (the original's webhook is
// Discord-specific and has no in-pack Go equivalent).
package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/homelab/warden/pkg/models"
)

const (
	colorGreen  = "#2eb886"
	colorOrange = "#ffa500"
	colorRed    = "#ff0000"

	maxFieldBytes = 1000
)

// Cooldowns is the subset of *store.EscalationCooldowns the notifier needs.
type Cooldowns interface {
	Check(ctx context.Context, alertName, alertInstance string, cooldown time.Duration) (active bool, escalatedAt *time.Time, err error)
	Set(ctx context.Context, alertName, alertInstance string) error
	Clear(ctx context.Context, alertName, alertInstance string) error
}

// SlackPoster is the subset of *slack.Client the notifier needs, so tests
// can substitute a fake without hitting the network.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier sends Slack notifications for remediation events (§4.12).
type Notifier struct {
	client    SlackPoster
	channel   string
	cooldowns Cooldowns
	cooldown  time.Duration
	log       *slog.Logger
}

// New builds a Notifier. cooldown is the minimum interval between repeat
// escalation notices for the same alert identity (§4.12, §8 property 3).
func New(token, channel string, cooldowns Cooldowns, cooldown time.Duration, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		client:    slack.New(token),
		channel:   channel,
		cooldowns: cooldowns,
		cooldown:  cooldown,
		log:       log,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// NotifySuccess announces a verified successful remediation.
func (n *Notifier) NotifySuccess(ctx context.Context, attempt *models.RemediationAttempt, execution time.Duration, maxAttempts int) error {
	commands := strings.Join(attempt.ExecutedCommands, "\n")
	analysis := attempt.AIAnalysis
	if analysis == "" {
		analysis = "No analysis"
	}
	outcome := attempt.RemediationPlan
	if outcome == "" {
		outcome = "Service restored"
	}

	attachment := slack.Attachment{
		Color: colorGreen,
		Title: "Alert Auto-Remediated",
		Text:  fmt.Sprintf("*%s* on `%s` has been automatically fixed.", attempt.AlertName, attempt.AlertInstance),
		Fields: []slack.AttachmentField{
			{Title: "Severity", Value: strings.ToUpper(attempt.Severity), Short: true},
			{Title: "Attempt", Value: fmt.Sprintf("%d/%d", attempt.AttemptNumber, maxAttempts), Short: true},
			{Title: "Duration", Value: execution.String(), Short: true},
			{Title: "AI Analysis", Value: truncate(analysis, maxFieldBytes), Short: false},
			{Title: "Commands Executed", Value: "```\n" + truncate(commands, maxFieldBytes) + "\n```", Short: false},
			{Title: "Expected Outcome", Value: truncate(outcome, 500), Short: false},
		},
		Footer: "warden",
		Ts:     json.Number(fmt.Sprintf("%d", time.Now().Unix())),
	}
	return n.post(ctx, attachment)
}

// NotifyFailure announces a failed remediation attempt that still has
// retries remaining.
func (n *Notifier) NotifyFailure(ctx context.Context, attempt *models.RemediationAttempt, execution time.Duration, maxAttempts int) error {
	commands := strings.Join(attempt.ExecutedCommands, "\n")
	if commands == "" {
		commands = "No commands executed"
	}
	errMsg := attempt.ErrorMessage
	if errMsg == "" {
		errMsg = "Unknown error"
	}

	attachment := slack.Attachment{
		Color: colorOrange,
		Title: "Auto-Remediation Failed",
		Text:  fmt.Sprintf("*%s* on `%s` - attempt %d/%d", attempt.AlertName, attempt.AlertInstance, attempt.AttemptNumber, maxAttempts),
		Fields: []slack.AttachmentField{
			{Title: "Severity", Value: strings.ToUpper(attempt.Severity), Short: true},
			{Title: "Attempts Remaining", Value: fmt.Sprintf("%d", maxAttempts-attempt.AttemptNumber), Short: true},
			{Title: "Duration", Value: execution.String(), Short: true},
			{Title: "Error", Value: "```\n" + truncate(errMsg, maxFieldBytes) + "\n```", Short: false},
			{Title: "Commands Attempted", Value: "```\n" + truncate(commands, maxFieldBytes) + "\n```", Short: false},
		},
		Footer: "warden",
		Ts:     json.Number(fmt.Sprintf("%d", time.Now().Unix())),
	}
	return n.post(ctx, attachment)
}

// NotifyEscalation announces that an alert has exhausted automated
// remediation and needs a human, cooldown-gated per identity (§4.12).
func (n *Notifier) NotifyEscalation(ctx context.Context, attempt *models.RemediationAttempt, previous []*models.RemediationAttempt) (sent bool, err error) {
	active, _, err := n.cooldowns.Check(ctx, attempt.AlertName, attempt.AlertInstance, n.cooldown)
	if err != nil {
		return false, err
	}
	if active {
		n.log.InfoContext(ctx, "escalation_suppressed_cooldown", "alert_name", attempt.AlertName, "alert_instance", attempt.AlertInstance)
		return false, nil
	}

	var summaryLines []string
	for i, prev := range previous {
		if i >= 3 {
			break
		}
		outcome := "Failed"
		if prev.Success {
			outcome = "Success"
		}
		cmds := strings.Join(firstN(prev.ExecutedCommands, 2), ", ")
		summaryLines = append(summaryLines, fmt.Sprintf("%d. %s - %s", i+1, cmds, outcome))
	}
	summary := strings.Join(summaryLines, "\n")
	if summary == "" {
		summary = "No previous attempts"
	}

	urgency := "MEDIUM"
	if attempt.Severity == "critical" {
		urgency = "HIGH"
	}
	analysis := attempt.AIAnalysis
	if analysis == "" {
		analysis = "Automated remediation exhausted"
	}
	reasoning := attempt.AIReasoning
	if reasoning == "" {
		reasoning = "Manual investigation required"
	}

	attachment := slack.Attachment{
		Color: colorRed,
		Title: "Alert Escalation Required",
		Text:  fmt.Sprintf("*%s* on `%s` has failed auto-remediation %d times.", attempt.AlertName, attempt.AlertInstance, len(previous)),
		Fields: []slack.AttachmentField{
			{Title: "Severity", Value: strings.ToUpper(attempt.Severity), Short: true},
			{Title: "Total Attempts", Value: fmt.Sprintf("%d", len(previous)), Short: true},
			{Title: "Urgency", Value: urgency, Short: true},
			{Title: "Summary", Value: truncate(analysis, maxFieldBytes), Short: false},
			{Title: "Previous Attempts", Value: truncate(summary, maxFieldBytes), Short: false},
			{Title: "Suggested Next Action", Value: truncate(reasoning, 500), Short: false},
		},
		Footer: "warden - manual review needed",
		Ts:     json.Number(fmt.Sprintf("%d", time.Now().Unix())),
	}
	if err := n.post(ctx, attachment, slack.MsgOptionText("<!here>", false)); err != nil {
		return false, err
	}
	if err := n.cooldowns.Set(ctx, attempt.AlertName, attempt.AlertInstance); err != nil {
		return true, err
	}
	return true, nil
}

// NotifyDangerousCommand announces that the validator rejected part of a
// plan, escalating the alert for manual review (§4.1, §4.12).
func (n *Notifier) NotifyDangerousCommand(ctx context.Context, alertName, alertInstance string, rejected, reasons []string) error {
	cmdLines := make([]string, 0, len(rejected))
	for _, c := range firstN(rejected, 5) {
		cmdLines = append(cmdLines, "- "+c)
	}
	reasonLines := make([]string, 0, len(reasons))
	for _, r := range firstN(reasons, 5) {
		reasonLines = append(reasonLines, "- "+r)
	}

	attachment := slack.Attachment{
		Color: colorRed,
		Title: "Dangerous Command Rejected",
		Text:  fmt.Sprintf("AI suggested unsafe commands for *%s* on `%s`", alertName, alertInstance),
		Fields: []slack.AttachmentField{
			{Title: "Rejected Commands", Value: "```\n" + strings.Join(cmdLines, "\n") + "\n```", Short: false},
			{Title: "Reasons", Value: strings.Join(reasonLines, "\n"), Short: false},
			{Title: "Action", Value: "Alert escalated for manual review", Short: false},
		},
		Footer: "warden - safety check",
		Ts:     json.Number(fmt.Sprintf("%d", time.Now().Unix())),
	}
	return n.post(ctx, attachment)
}

// ClearEscalation drops the cooldown for an identity, called on alert
// resolution so a future recurrence can escalate immediately (§8 property 3).
func (n *Notifier) ClearEscalation(ctx context.Context, alertName, alertInstance string) error {
	return n.cooldowns.Clear(ctx, alertName, alertInstance)
}

// NotifyPredictedExhaustion announces a Proactive Monitor finding: a
// resource predicted to run out before it would otherwise trigger an alert
// (§4.16). Not cooldown-gated here since pkg/proactive already suppresses
// repeat notifications for the same target.
func (n *Notifier) NotifyPredictedExhaustion(ctx context.Context, checkType, target, finding string) error {
	attachment := slack.Attachment{
		Color: colorOrange,
		Title: "Proactive Exhaustion Warning",
		Text:  fmt.Sprintf("Predicted `%s` issue on *%s*", checkType, target),
		Fields: []slack.AttachmentField{
			{Title: "Finding", Value: finding, Short: false},
		},
		Footer: "warden - proactive monitor",
		Ts:     json.Number(fmt.Sprintf("%d", time.Now().Unix())),
	}
	return n.post(ctx, attachment)
}

// NotifyHostStatus announces a Host Monitor state transition (§4.6). It
// satisfies hostmonitor.Notifier, whose interface is synchronous and
// error-less since the monitor's state machine must not block or retry on
// a failed notification; errors are logged instead.
func (n *Notifier) NotifyHostStatus(host string, status models.HostStatus, detail string) {
	color := colorOrange
	title := fmt.Sprintf("Host %s: %s", host, status)
	if status == models.HostOnline {
		color = colorGreen
	} else if status == models.HostOffline {
		color = colorRed
	}

	attachment := slack.Attachment{
		Color:  color,
		Title:  title,
		Text:   detail,
		Footer: "warden - host monitor",
		Ts:     json.Number(fmt.Sprintf("%d", time.Now().Unix())),
	}
	if err := n.post(context.Background(), attachment); err != nil {
		n.log.ErrorContext(context.Background(), "notify_host_status_failed", "host", host, "error", err.Error())
	}
}

// NotifySuppressionSummary announces a consolidated count of alerts
// suppressed for an offline host, rather than one notification per
// suppressed alert. Satisfies suppressor.Notifier, whose interface is
// synchronous and error-less for the same reason hostmonitor.Notifier's is.
// Grounded on original_source/app/alert_suppressor.py's
// send_suppression_summary.
func (n *Notifier) NotifySuppressionSummary(host string, count int) {
	if count == 0 {
		return
	}
	attachment := slack.Attachment{
		Color: colorOrange,
		Title: fmt.Sprintf("Alert Suppression Summary: %s", host),
		Text:  fmt.Sprintf("%d alert(s) suppressed while `%s` was unreachable.", count, host),
		Footer: "warden - suppressor",
		Ts:     json.Number(fmt.Sprintf("%d", time.Now().Unix())),
	}
	if err := n.post(context.Background(), attachment); err != nil {
		n.log.ErrorContext(context.Background(), "notify_suppression_summary_failed", "host", host, "error", err.Error())
	}
}

func (n *Notifier) post(ctx context.Context, attachment slack.Attachment, extra ...slack.MsgOption) error {
	opts := append([]slack.MsgOption{slack.MsgOptionAttachments(attachment)}, extra...)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, opts...)
	if err != nil {
		n.log.ErrorContext(ctx, "slack_post_failed", "error", err.Error())
		return fmt.Errorf("post slack notification: %w", err)
	}
	return nil
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
