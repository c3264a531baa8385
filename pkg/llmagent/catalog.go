// Package llmagent implements the LLM Agent (C10): the tool-use loop against
// an Anthropic model, the fixed tool catalog, and final-message parsing.
// Grounded on original_source/app/claude_agent.py.
package llmagent

// Tool names in the fixed catalog (§4.10).
const (
	ToolGatherLogs          = "gather_logs"
	ToolCheckServiceStatus  = "check_service_status"
	ToolRestartService      = "restart_service"
	ToolExecuteSafeCommand  = "execute_safe_command"
	ToolQueryAggregatedLogs = "query_aggregated_logs"
	ToolQueryMetricHistory  = "query_metric_history"

	// Optional tools, only advertised when their adapters are configured
	// (§9 Open Question ii).
	ToolRestartHomeAutomationAddon = "restart_home_automation_addon"
	ToolReloadHomeAutomations      = "reload_home_automations"
	ToolGetHomeAutomationAddonInfo = "get_home_automation_addon_info"
	ToolExecuteWorkflow            = "execute_workflow"
	ToolListWorkflows              = "list_workflows"
)

// ToolSpec is a host-agnostic description of one tool: name, description,
// and JSON-schema input shape. Kept separate from the Anthropic SDK's own
// types so the catalog is plain data and the SDK-specific conversion lives
// in one place (Agent.sdkTools in agent.go).
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// hostEnum is the closed host set a tool's "host" parameter accepts,
// matching the SSH Executor's configured hosts (§4.2).
var hostEnum = []string{"nexus", "automation", "outpost", "core"}

// BaseCatalog returns the always-present tools. haAvailable/workflowAvailable
// gate the optional home-automation/workflow-orchestrator tools onto the end
// of the catalog when those adapters are configured.
func BaseCatalog(haAvailable, workflowAvailable bool) []ToolSpec {
	tools := []ToolSpec{
		{
			Name:        ToolGatherLogs,
			Description: "Gather recent logs from a system service to understand what's happening. Use this first to diagnose the issue.",
			Schema: objectSchema(map[string]any{
				"host":         enumProp(hostEnum, "Which system to gather logs from"),
				"service_type": enumProp([]string{"docker", "systemd", "system"}, "Type of service"),
				"service_name": stringProp("Name of the service or container (not needed for system logs)"),
				"lines":        intProp("Number of log lines to retrieve (default 100)"),
			}, "host", "service_type"),
		},
		{
			Name:        ToolCheckServiceStatus,
			Description: "Check if a service is running and get its current status.",
			Schema: objectSchema(map[string]any{
				"host":         enumProp(hostEnum, "Which system to check"),
				"service_name": stringProp("Name of the service or container"),
				"service_type": enumProp([]string{"docker", "systemd"}, "Type of service"),
			}, "host", "service_name"),
		},
		{
			Name:        ToolRestartService,
			Description: "Restart a Docker container or systemd service. This is a safe operation that often resolves issues.",
			Schema: objectSchema(map[string]any{
				"host":         enumProp(hostEnum, "Which system the service is on"),
				"service_type": enumProp([]string{"docker", "systemd"}, "Type of service to restart"),
				"service_name": stringProp("Name of the service or container"),
			}, "host", "service_type", "service_name"),
		},
		{
			Name:        ToolExecuteSafeCommand,
			Description: "Execute a validated safe command on a system. Only use this for read-only commands or well-known safe operations.",
			Schema: objectSchema(map[string]any{
				"host":    enumProp(hostEnum, "Which system to execute on"),
				"command": stringProp("The command to execute (will be validated against a blacklist)"),
			}, "host", "command"),
		},
		{
			Name:        ToolQueryAggregatedLogs,
			Description: "Query aggregated logs from the central log store. Use this to find application-level errors, correlate events across services, or search for specific patterns without needing SSH.",
			Schema: objectSchema(map[string]any{
				"query_type": enumProp([]string{"container_errors", "service_logs", "search"}, "Type of log query"),
				"target":     stringProp("Container name, service name, or search pattern depending on query_type"),
				"minutes":    intProp("How many minutes back to search (default 15)"),
			}, "query_type", "target"),
		},
		{
			Name:        ToolQueryMetricHistory,
			Description: "Query metric history and trends. Use to understand if a problem is getting worse, correlate with events, or predict resource exhaustion.",
			Schema: objectSchema(map[string]any{
				"metric":             stringProp("Metric name (e.g. node_memory_MemAvailable_bytes, node_filesystem_avail_bytes)"),
				"instance":           stringProp("Target instance (e.g. 'outpost:9100')"),
				"hours":              intProp("Hours of history to query (default 6)"),
				"predict_exhaustion": boolProp("If true, predict when the metric will cross zero"),
			}, "metric", "instance"),
		},
	}

	if haAvailable {
		tools = append(tools,
			ToolSpec{
				Name:        ToolRestartHomeAutomationAddon,
				Description: "Restart a home-automation addon via its Supervisor API. Use for addon-specific issues (e.g. a Zigbee bridge, an MQTT broker).",
				Schema:      objectSchema(map[string]any{"addon_slug": stringProp("Addon name or slug")}, "addon_slug"),
			},
			ToolSpec{
				Name:        ToolReloadHomeAutomations,
				Description: "Reload all home-automation automations. Use when automations are stuck or not triggering.",
				Schema:      objectSchema(map[string]any{}),
			},
			ToolSpec{
				Name:        ToolGetHomeAutomationAddonInfo,
				Description: "Get status and info about a home-automation addon.",
				Schema:      objectSchema(map[string]any{"addon_slug": stringProp("Addon name or slug")}, "addon_slug"),
			},
		)
	}

	if workflowAvailable {
		tools = append(tools,
			ToolSpec{
				Name:        ToolExecuteWorkflow,
				Description: "Execute a workflow for complex multi-step operations (e.g. database recovery, certificate renewal).",
				Schema: objectSchema(map[string]any{
					"name": stringProp("Workflow name"),
					"data": objectSchema(map[string]any{}),
					"wait": boolProp("If true, wait for the workflow to complete (default true)"),
				}, "name"),
			},
			ToolSpec{
				Name:        ToolListWorkflows,
				Description: "List all available workflows.",
				Schema:      objectSchema(map[string]any{}),
			},
		)
	}

	return tools
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func enumProp(values []string, description string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": description}
}
