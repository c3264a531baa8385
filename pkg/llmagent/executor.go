package llmagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/homelab/warden/pkg/sshexec"
	"github.com/homelab/warden/pkg/validator"
)

// maxToolOutputBytes caps any single tool result before it goes back to the
// model, so one runaway log dump can't blow the context window.
const maxToolOutputBytes = 2048

const defaultToolTimeout = 30 * time.Second

// SSHRunner is the subset of *sshexec.Executor the tool executor needs.
type SSHRunner interface {
	Execute(ctx context.Context, host string, cmds []string, timeout time.Duration) sshexec.Result
	GatherLogs(ctx context.Context, host string, kind sshexec.LogKind, name string, lines int, timeout time.Duration) sshexec.Result
	Status(ctx context.Context, host, name string, kind sshexec.LogKind, timeout time.Duration) sshexec.Result
}

// LogQuerier is the subset of *logsclient.Client the query_aggregated_logs
// tool needs.
type LogQuerier interface {
	ContainerErrors(ctx context.Context, container string, minutes int) string
	ServiceLogs(ctx context.Context, service string, minutes int) string
	Search(ctx context.Context, pattern, job string, minutes int) string
}

// MetricQuerier is the subset of *metricsclient.Client the
// query_metric_history tool needs.
type MetricQuerier interface {
	QueryRange(ctx context.Context, query string, start, end time.Time, step string) ([]MetricSample, error)
	PredictExhaustion(ctx context.Context, metric, instance string, threshold float64) (*ExhaustionPrediction, error)
}

// MetricSample and ExhaustionPrediction mirror metricsclient's result shapes
// structurally, so this package doesn't need to import it just to satisfy
// the MetricQuerier interface signature. *metricsclient.Client returns its
// own types, so callers wrap it in an adapter that converts them (see
// pkg/pipeline's metricsAdapter).
type MetricSample struct {
	Metric map[string]string
	Values [][2]any
}

type ExhaustionPrediction struct {
	WillExhaust    bool
	Current        float64
	Threshold      float64
	HoursRemaining float64
	TrendPerHour   float64
}

// HomeAutomation is the optional adapter for the Home Automation tools
// (§9 Open Question ii). Nil when not configured.
type HomeAutomation interface {
	RestartAddon(ctx context.Context, slug string) error
	ReloadAutomations(ctx context.Context) error
	AddonInfo(ctx context.Context, slug string) (string, error)
}

// WorkflowRunner is the optional adapter for the workflow-orchestrator tools.
// Nil when not configured.
type WorkflowRunner interface {
	Execute(ctx context.Context, name string, data map[string]any, wait bool) (string, error)
	List(ctx context.Context) ([]string, error)
}

// ToolExecutor dispatches a named tool call with its raw JSON input to the
// underlying SSH/log/metric/adapter clients, returning a string result (or
// an error string) to feed back to the model as a tool_result block.
// Grounded on original_source/app/claude_agent.py's _execute_tool.
type ToolExecutor struct {
	SSH     SSHRunner
	Logs    LogQuerier
	Metrics MetricQuerier
	HA      HomeAutomation
	Flows   WorkflowRunner

	// Validate is consulted before execute_safe_command runs a command.
	Validate func(command string) validator.Result
}

// Execute dispatches one tool call. The returned string is always safe to
// feed back to the model (truncated, never raw error stack traces for the
// adapter-not-configured case -- it comes back as a plain sentence).
func (t *ToolExecutor) Execute(ctx context.Context, name string, rawInput json.RawMessage) (output string, executedCommand string) {
	var input map[string]any
	if len(rawInput) > 0 {
		if err := json.Unmarshal(rawInput, &input); err != nil {
			return "error: tool input was not a JSON object", ""
		}
	}

	switch name {
	case ToolGatherLogs:
		return t.gatherLogs(ctx, input)
	case ToolCheckServiceStatus:
		return t.checkServiceStatus(ctx, input)
	case ToolRestartService:
		return t.restartService(ctx, input)
	case ToolExecuteSafeCommand:
		return t.executeSafeCommand(ctx, input)
	case ToolQueryAggregatedLogs:
		return t.queryAggregatedLogs(ctx, input), ""
	case ToolQueryMetricHistory:
		return t.queryMetricHistory(ctx, input), ""
	case ToolRestartHomeAutomationAddon:
		return t.restartHAAddon(ctx, input), ""
	case ToolReloadHomeAutomations:
		return t.reloadHAAutomations(ctx), ""
	case ToolGetHomeAutomationAddonInfo:
		return t.haAddonInfo(ctx, input), ""
	case ToolExecuteWorkflow:
		return t.executeWorkflow(ctx, input), ""
	case ToolListWorkflows:
		return t.listWorkflows(ctx), ""
	default:
		return fmt.Sprintf("error: unknown tool %q", name), ""
	}
}

func stringField(input map[string]any, key string) (string, bool) {
	v, ok := input[key].(string)
	return v, ok && v != ""
}

func intField(input map[string]any, key string, def int) int {
	if v, ok := input[key].(float64); ok {
		return int(v)
	}
	return def
}

func boolField(input map[string]any, key string) bool {
	v, _ := input[key].(bool)
	return v
}

func (t *ToolExecutor) requireHost(input map[string]any) (string, bool) {
	return stringField(input, "host")
}

func (t *ToolExecutor) gatherLogs(ctx context.Context, input map[string]any) (string, string) {
	host, ok := t.requireHost(input)
	if !ok {
		return "error: host is required", ""
	}
	kind := sshexec.LogKind(input["service_type"].(string))
	name, _ := stringField(input, "service_name")
	lines := intField(input, "lines", 100)
	res := t.SSH.GatherLogs(ctx, host, kind, name, lines, defaultToolTimeout)
	return formatResult(res), ""
}

func (t *ToolExecutor) checkServiceStatus(ctx context.Context, input map[string]any) (string, string) {
	host, ok := t.requireHost(input)
	if !ok {
		return "error: host is required", ""
	}
	name, _ := stringField(input, "service_name")
	kind := sshexec.LogKind(input["service_type"].(string))
	res := t.SSH.Status(ctx, host, name, kind, defaultToolTimeout)
	return formatResult(res), ""
}

func (t *ToolExecutor) restartService(ctx context.Context, input map[string]any) (string, string) {
	host, ok := t.requireHost(input)
	if !ok {
		return "error: host is required", ""
	}
	serviceType, _ := stringField(input, "service_type")
	name, _ := stringField(input, "service_name")

	var cmd string
	switch serviceType {
	case "docker":
		cmd = fmt.Sprintf("docker restart %s", name)
	case "systemd":
		cmd = fmt.Sprintf("systemctl restart %s", name)
	default:
		return fmt.Sprintf("error: unsupported service_type %q", serviceType), ""
	}

	res := t.SSH.Execute(ctx, host, []string{cmd}, defaultToolTimeout)
	return formatResult(res), cmd
}

func (t *ToolExecutor) executeSafeCommand(ctx context.Context, input map[string]any) (string, string) {
	host, ok := t.requireHost(input)
	if !ok {
		return "error: host is required", ""
	}
	cmd, ok := stringField(input, "command")
	if !ok {
		return "error: command is required", ""
	}

	if t.Validate != nil {
		if v := t.Validate(cmd); !v.Safe {
			return fmt.Sprintf("error: command rejected: %s", v.Reason), ""
		}
	}

	res := t.SSH.Execute(ctx, host, []string{cmd}, defaultToolTimeout)
	return formatResult(res), cmd
}

func (t *ToolExecutor) queryAggregatedLogs(ctx context.Context, input map[string]any) string {
	if t.Logs == nil {
		return "error: log store not configured"
	}
	queryType, _ := stringField(input, "query_type")
	target, ok := stringField(input, "target")
	if !ok {
		return "error: target is required"
	}
	minutes := intField(input, "minutes", 15)

	switch queryType {
	case "container_errors":
		return truncateOutput(t.Logs.ContainerErrors(ctx, target, minutes))
	case "service_logs":
		return truncateOutput(t.Logs.ServiceLogs(ctx, target, minutes))
	case "search":
		return truncateOutput(t.Logs.Search(ctx, target, "", minutes))
	default:
		return fmt.Sprintf("error: unsupported query_type %q", queryType)
	}
}

func (t *ToolExecutor) queryMetricHistory(ctx context.Context, input map[string]any) string {
	if t.Metrics == nil {
		return "error: metrics backend not configured"
	}
	metric, ok := stringField(input, "metric")
	if !ok {
		return "error: metric is required"
	}
	instance, ok := stringField(input, "instance")
	if !ok {
		return "error: instance is required"
	}
	hours := intField(input, "hours", 6)

	if boolField(input, "predict_exhaustion") {
		pred, err := t.Metrics.PredictExhaustion(ctx, metric, instance, 0)
		if err != nil {
			return fmt.Sprintf("error predicting exhaustion: %s", err)
		}
		if !pred.WillExhaust {
			return fmt.Sprintf("%s on %s is not trending toward exhaustion (trend %.4f/hr)", metric, instance, pred.TrendPerHour)
		}
		return fmt.Sprintf("%s on %s will exhaust in ~%.1f hours (current %.2f, trend %.4f/hr)",
			metric, instance, pred.HoursRemaining, pred.Current, pred.TrendPerHour)
	}

	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	samples, err := t.Metrics.QueryRange(ctx, fmt.Sprintf(`%s{instance="%s"}`, metric, instance), start, end, "5m")
	if err != nil {
		return fmt.Sprintf("error querying metric history: %s", err)
	}
	if len(samples) == 0 {
		return fmt.Sprintf("no data for %s on %s in the last %d hours", metric, instance, hours)
	}
	return truncateOutput(fmt.Sprintf("%d series returned for %s on %s over the last %d hours", len(samples), metric, instance, hours))
}

func (t *ToolExecutor) restartHAAddon(ctx context.Context, input map[string]any) string {
	if t.HA == nil {
		return "error: home automation adapter not configured"
	}
	slug, ok := stringField(input, "addon_slug")
	if !ok {
		return "error: addon_slug is required"
	}
	if err := t.HA.RestartAddon(ctx, slug); err != nil {
		return fmt.Sprintf("error restarting addon: %s", err)
	}
	return fmt.Sprintf("addon %s restarted", slug)
}

func (t *ToolExecutor) reloadHAAutomations(ctx context.Context) string {
	if t.HA == nil {
		return "error: home automation adapter not configured"
	}
	if err := t.HA.ReloadAutomations(ctx); err != nil {
		return fmt.Sprintf("error reloading automations: %s", err)
	}
	return "automations reloaded"
}

func (t *ToolExecutor) haAddonInfo(ctx context.Context, input map[string]any) string {
	if t.HA == nil {
		return "error: home automation adapter not configured"
	}
	slug, ok := stringField(input, "addon_slug")
	if !ok {
		return "error: addon_slug is required"
	}
	info, err := t.HA.AddonInfo(ctx, slug)
	if err != nil {
		return fmt.Sprintf("error fetching addon info: %s", err)
	}
	return truncateOutput(info)
}

func (t *ToolExecutor) executeWorkflow(ctx context.Context, input map[string]any) string {
	if t.Flows == nil {
		return "error: workflow orchestrator not configured"
	}
	name, ok := stringField(input, "name")
	if !ok {
		return "error: name is required"
	}
	data, _ := input["data"].(map[string]any)
	wait := true
	if v, ok := input["wait"].(bool); ok {
		wait = v
	}
	result, err := t.Flows.Execute(ctx, name, data, wait)
	if err != nil {
		return fmt.Sprintf("error executing workflow: %s", err)
	}
	return truncateOutput(result)
}

func (t *ToolExecutor) listWorkflows(ctx context.Context) string {
	if t.Flows == nil {
		return "error: workflow orchestrator not configured"
	}
	names, err := t.Flows.List(ctx)
	if err != nil {
		return fmt.Sprintf("error listing workflows: %s", err)
	}
	b, _ := json.Marshal(names)
	return string(b)
}

func formatResult(res sshexec.Result) string {
	if !res.Success {
		if res.Error != "" {
			return truncateOutput(fmt.Sprintf("command failed: %s", res.Error))
		}
		return truncateOutput(fmt.Sprintf("command exited non-zero: %v", res.ExitCodes))
	}
	out := ""
	for i, o := range res.Outputs {
		if i > 0 {
			out += "\n---\n"
		}
		out += o
	}
	return truncateOutput(out)
}

func truncateOutput(s string) string {
	if len(s) <= maxToolOutputBytes {
		return s
	}
	return s[:maxToolOutputBytes] + "\n... (truncated)"
}
