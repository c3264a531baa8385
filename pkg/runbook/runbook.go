// Package runbook loads structured remediation guidance from local markdown
// files (§4.15). Grounded on original_source/app/runbook_manager.py's
// section/frontmatter parsing, reshaped onto the teacher's
// pkg/runbook.Service+Cache pattern with the GitHub fetch replaced by a
// local-directory load (SPEC_FULL.md's runbooks ship with the deployment
// rather than being fetched remotely).
package runbook

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Runbook is a parsed markdown runbook for a single alert type.
type Runbook struct {
	AlertName          string
	Title              string
	Overview           string
	InvestigationSteps []string
	CommonCauses       []string
	RemediationSteps   []string
	Commands           []string
	RiskLevel          string
	EstimatedDuration  string
	RawContent         string
}

var (
	titlePattern      = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	codeBlockPattern  = regexp.MustCompile(`(?s)` + "```" + `(?:bash|sh)?\n(.*?)` + "```")
	listItemPattern   = regexp.MustCompile(`(?m)^\s*[\d.\-*]+\s*(.+)$`)
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.*?)\n---`)
)

// Service loads and serves runbooks from a directory of markdown files,
// reloading its in-memory index on a TTL so an operator editing a runbook
// on disk is picked up without a restart.
type Service struct {
	mu        sync.RWMutex
	dir       string
	runbooks  map[string]*Runbook
	loadedAt  time.Time
	ttl       time.Duration
}

// New builds a Service over dir. The index is empty until the first Load or
// Get call triggers a lazy load.
func New(dir string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{dir: dir, runbooks: make(map[string]*Runbook), ttl: ttl}
}

// Load reads every *.md file in the configured directory and rebuilds the
// in-memory index. A missing directory is not an error: it just means no
// runbooks are configured (§4.15).
func (s *Service) Load() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.runbooks = make(map[string]*Runbook)
			s.loadedAt = time.Now()
			s.mu.Unlock()
			return 0, nil
		}
		return 0, fmt.Errorf("read runbook directory %s: %w", s.dir, err)
	}

	loaded := make(map[string]*Runbook)
	var parseErrs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("%s: %v", e.Name(), err))
			continue
		}
		rb := parse(strings.TrimSuffix(e.Name(), ".md"), string(content))
		loaded[strings.ToLower(rb.AlertName)] = rb
	}

	s.mu.Lock()
	s.runbooks = loaded
	s.loadedAt = time.Now()
	s.mu.Unlock()

	if len(parseErrs) > 0 {
		return len(loaded), fmt.Errorf("failed to parse %d runbook(s): %s", len(parseErrs), strings.Join(parseErrs, "; "))
	}
	return len(loaded), nil
}

func (s *Service) ensureFresh() {
	s.mu.RLock()
	stale := time.Since(s.loadedAt) > s.ttl
	s.mu.RUnlock()
	if stale {
		_, _ = s.Load()
	}
}

// Get returns the runbook matching alertName, trying an exact (case
// insensitive) match first, then a substring match either direction, the
// same lenient lookup original_source/app/runbook_manager.py uses since
// alert names and runbook filenames rarely agree on exact casing or suffixes.
func (s *Service) Get(alertName string) (*Runbook, bool) {
	s.ensureFresh()
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := strings.ToLower(alertName)
	if rb, ok := s.runbooks[key]; ok {
		return rb, true
	}
	for rbKey, rb := range s.runbooks {
		if strings.Contains(rbKey, key) || strings.Contains(key, rbKey) {
			return rb, true
		}
	}
	return nil, false
}

// Summary is one entry of List's result, for the /runbooks diagnostic
// endpoint.
type Summary struct {
	AlertName         string
	Title             string
	RiskLevel         string
	CommandCount      int
	HasInvestigation  bool
	HasRemediation    bool
}

// List summarizes every loaded runbook.
func (s *Service) List() []Summary {
	s.ensureFresh()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.runbooks))
	for _, rb := range s.runbooks {
		out = append(out, Summary{
			AlertName:        rb.AlertName,
			Title:            rb.Title,
			RiskLevel:        rb.RiskLevel,
			CommandCount:     len(rb.Commands),
			HasInvestigation: len(rb.InvestigationSteps) > 0,
			HasRemediation:   len(rb.RemediationSteps) > 0,
		})
	}
	return out
}

// Context formats runbook guidance as markdown for injection into the LLM
// Agent's system prompt, matching get_runbook_context's shape so the model
// receives the guidance in a format consistent with the agent's other
// context sections. Returns "" if no runbook matches alertName.
func (s *Service) Context(alertName string) string {
	rb, ok := s.Get(alertName)
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n## Runbook: %s\n\n", rb.Title)
	fmt.Fprintf(&b, "### Overview\n%s\n\n", rb.Overview)
	fmt.Fprintf(&b, "### Investigation Steps\n%s\n\n", formatList(rb.InvestigationSteps))
	fmt.Fprintf(&b, "### Common Causes\n%s\n\n", formatList(rb.CommonCauses))
	fmt.Fprintf(&b, "### Remediation Steps\n%s\n\n", formatList(rb.RemediationSteps))
	fmt.Fprintf(&b, "### Recommended Commands\n```bash\n%s\n```\n\n", strings.Join(rb.Commands, "\n"))
	fmt.Fprintf(&b, "### Metadata\n- Risk Level: %s\n- Estimated Duration: %s\n\n", rb.RiskLevel, rb.EstimatedDuration)
	b.WriteString("**Follow these steps in order. Investigate before acting.**\n")
	return b.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "- No specific steps documented"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = strconv.Itoa(i+1) + ". " + item
	}
	return strings.Join(lines, "\n")
}

func parse(filenameStem, content string) *Runbook {
	title := filenameStem + " Runbook"
	if m := titlePattern.FindStringSubmatch(content); m != nil {
		title = m[1]
	}

	rb := &Runbook{
		AlertName:          filenameStem,
		Title:              title,
		Overview:           extractSection(content, "Overview", "Investigation"),
		InvestigationSteps: extractListSection(content, "Investigation"),
		CommonCauses:       extractListSection(content, "Common Causes"),
		RemediationSteps:   extractListSection(content, "Remediation"),
		Commands:           extractCodeBlocks(content),
		RiskLevel:          extractMetadata(content, "risk_level", "medium"),
		EstimatedDuration:  extractMetadata(content, "estimated_duration", "5-10 minutes"),
		RawContent:         content,
	}
	return rb
}

func extractSection(content, name, next string) string {
	var pattern string
	if next != "" {
		pattern = `(?is)##\s+` + regexp.QuoteMeta(name) + `.*?\n(.*?)(?:##\s+` + regexp.QuoteMeta(next) + `|$)`
	} else {
		pattern = `(?is)##\s+` + regexp.QuoteMeta(name) + `.*?\n(.*?)(?:##|$)`
	}
	re := regexp.MustCompile(pattern)
	m := re.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func extractListSection(content, name string) []string {
	section := extractSection(content, name, "")
	if section == "" {
		return nil
	}
	matches := listItemPattern.FindAllStringSubmatch(section, -1)
	items := make([]string, 0, len(matches))
	for _, m := range matches {
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func extractCodeBlocks(content string) []string {
	matches := codeBlockPattern.FindAllStringSubmatch(content, -1)
	var commands []string
	for _, m := range matches {
		for _, line := range strings.Split(strings.TrimSpace(m[1]), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				commands = append(commands, line)
			}
		}
	}
	return commands
}

func extractMetadata(content, key, def string) string {
	if m := frontmatterPattern.FindStringSubmatch(content); m != nil {
		keyPattern := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(key) + `:\s*(.+)$`)
		if km := keyPattern.FindStringSubmatch(m[1]); km != nil {
			return strings.Trim(strings.TrimSpace(km[1]), `"'`)
		}
	}
	inlinePattern := regexp.MustCompile(`<!--\s*` + regexp.QuoteMeta(key) + `:\s*(.+?)\s*-->`)
	if m := inlinePattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return def
}
