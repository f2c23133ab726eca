package agent

import "strings"

// Handoff lets one profile transfer the conversation to another. The LLM
// sees it as a tool named ToolName.
type Handoff struct {
	ToolName    string `yaml:"tool_name" json:"tool_name"`
	Target      string `yaml:"target" json:"target"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Profile is an agent configuration: who the agent is, what it may call and
// where it may hand the conversation off to.
type Profile struct {
	// Name of the profile (e.g., "db_simple_query")
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	// Parent names a profile whose fields this one inherits.
	Parent string `yaml:"parent,omitempty" json:"parent,omitempty"`
	// Provider selects a configured LLM provider. Empty uses the default.
	Provider     string `yaml:"provider,omitempty" json:"provider,omitempty"`
	Instructions string `yaml:"instructions" json:"instructions"`
	// AllowedTools lists the names of tools this profile is allowed to use.
	// If empty, all tools are allowed.
	AllowedTools []string  `yaml:"allowed_tools,omitempty" json:"allowed_tools,omitempty"`
	Handoffs     []Handoff `yaml:"handoffs,omitempty" json:"handoffs,omitempty"`
	// Triggers are keywords that route a free-form question to this profile.
	Triggers []string `yaml:"triggers,omitempty" json:"triggers,omitempty"`
}

// MergeWith returns a copy of p overlaid with child. Instructions are
// concatenated, list fields are replaced when the child sets them, and
// scalar fields are replaced when non-empty.
func (p Profile) MergeWith(child *Profile) *Profile {
	merged := p
	merged.Name = child.Name
	merged.Parent = child.Parent
	if child.Description != "" {
		merged.Description = child.Description
	}
	if child.Provider != "" {
		merged.Provider = child.Provider
	}
	switch {
	case p.Instructions == "":
		merged.Instructions = child.Instructions
	case child.Instructions != "":
		merged.Instructions = p.Instructions + "\n\n" + child.Instructions
	}
	if child.AllowedTools != nil {
		merged.AllowedTools = child.AllowedTools
	}
	if child.Handoffs != nil {
		merged.Handoffs = child.Handoffs
	}
	if child.Triggers != nil {
		merged.Triggers = child.Triggers
	}
	return &merged
}

// Allows reports whether the profile may call the named tool. An entry
// ending in "*" matches by prefix.
func (p Profile) Allows(tool string) bool {
	if len(p.AllowedTools) == 0 {
		return true
	}
	for _, name := range p.AllowedTools {
		if name == tool {
			return true
		}
		if prefix, ok := strings.CutSuffix(name, "*"); ok && strings.HasPrefix(tool, prefix) {
			return true
		}
	}
	return false
}

// matches reports whether any trigger keyword appears in question.
func (p Profile) matches(question string) bool {
	q := strings.ToLower(question)
	for _, t := range p.Triggers {
		if t != "" && strings.Contains(q, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// DefaultProfile is the entry point for questions that name no profile.
const DefaultProfile = "general_help"

const baseInstructions = `You are an operations assistant with access to tools.
Follow this process:
1. Think: decide what information you need.
2. Act: call a tool or hand off to a specialist.
3. Observe: read the result.
4. Repeat until you can answer, then reply without calling tools.
Never invent tool output. If you cannot complete the task, say so and why.`

// Built-in profiles
var (
	GeneralHelpProfile = Profile{
		Name:         DefaultProfile,
		Description:  "Routes requests to the specialist that can answer them",
		Instructions: baseInstructions + "\nPrefer a handoff when a specialist exists. State which handoff you used.",
		AllowedTools: []string{"http_request", "http_write_request"},
		Handoffs: []Handoff{
			{ToolName: "postgres_simple_select_expert", Target: "db_simple_query", Description: "SQL SELECT questions against the main Postgres database"},
			{ToolName: "elastic_query_expert", Target: "elastic_query", Description: "Searches over Elasticsearch indices"},
			{ToolName: "k8s_expert", Target: "k8s_helper", Description: "Kubernetes namespaces, deployments, pods and logs"},
			{ToolName: "grafana_expert", Target: "grafana_alerts", Description: "Grafana alerts and their state"},
		},
	}

	DBSimpleQueryProfile = Profile{
		Name:         "db_simple_query",
		Description:  "Answers questions with read-only SELECT queries against Postgres",
		Instructions: baseInstructions + "\nInspect a table with the example-run tool before querying it. Prefer aggregates over bulk rows.",
		AllowedTools: []string{"postgres_simple_select", "postgres_simple_select_example_run"},
		Triggers:     []string{"sql", "postgres", "table", "database"},
	}

	ElasticQueryProfile = Profile{
		Name:         "elastic_query",
		Description:  "Searches Elasticsearch with query_string queries",
		Instructions: baseInstructions + "\nUse Lucene query_string syntax. Narrow the query before widening it.",
		AllowedTools: []string{"elastic_query_search", "http_request"},
		Triggers:     []string{"elastic", "avatar", "index"},
	}

	K8sHelperProfile = Profile{
		Name:         "k8s_helper",
		Description:  "Inspects and scales Kubernetes workloads",
		Instructions: baseInstructions + "\nValidate the namespace before looking for deployments. Scaling requires approval.",
		AllowedTools: []string{
			"get_all_namespaces",
			"get_all_deployments",
			"get_deployment_status",
			"get_pods_per_deployment",
			"get_pod_logs",
			"set_deployment_replicas",
		},
		Triggers: []string{"kubernetes", "k8s", "pod", "deployment", "namespace", "replica"},
	}

	GrafanaAlertsProfile = Profile{
		Name:         "grafana_alerts",
		Description:  "Investigates Grafana alerts",
		Instructions: baseInstructions + "\nGroup related alerts and report severity, service and environment for each.",
		AllowedTools: []string{"grafana_*", "http_request"},
		Triggers:     []string{"grafana", "alert", "firing"},
	}
)

// BuiltinProfiles returns the profiles available without any YAML files.
func BuiltinProfiles() []Profile {
	return []Profile{
		GeneralHelpProfile,
		DBSimpleQueryProfile,
		ElasticQueryProfile,
		K8sHelperProfile,
		GrafanaAlertsProfile,
	}
}
