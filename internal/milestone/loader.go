package milestone

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultEstimateMinutes is assumed when a task carries no estimate.
const defaultEstimateMinutes = 30

// Markdown milestone grammar. A definition looks like:
//
//	# Title
//
//	Free-form description.
//
//	## Dependencies
//	- other-milestone-id
//
//	## Task 1: Short task title
//	### Requirements
//	...
//	### Acceptance Criteria
//	...
//	Priority: High
//	Estimated Time: 45
var (
	titleRe        = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	descriptionRe  = regexp.MustCompile(`(?s)^#\s+.+?\n\n(.*?)(?:\n##|\z)`)
	dependenciesRe = regexp.MustCompile(`(?ms)^## Dependencies\n(.*?)(?:\n##|\z)`)
	depItemRe      = regexp.MustCompile(`(?m)^-\s+(.+)$`)
	taskHeaderRe   = regexp.MustCompile(`(?m)^## Task (\d+): (.+)$`)
	sectionBreakRe = regexp.MustCompile(`(?m)^## `)
	requirementsRe = regexp.MustCompile(`(?s)### Requirements\n(.*?)(?:\n###|\z)`)
	criteriaRe     = regexp.MustCompile(`(?s)### Acceptance Criteria\n(.*?)(?:\n###|\z)`)
	priorityRe     = regexp.MustCompile(`Priority:\s*(High|Medium|Low)`)
	estimateRe     = regexp.MustCompile(`Estimated Time:\s*(\d+)`)
	stagePrefixRe  = regexp.MustCompile(`^(\d+)`)
)

// Load reads a single milestone definition. The format is chosen by file
// extension: .md uses the markdown grammar above, .yaml/.yml unmarshal
// directly into Milestone.
func Load(path string) (*Milestone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read milestone file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		return parseMarkdown(path, data)
	case ".yaml", ".yml":
		return parseYAML(path, data)
	default:
		return nil, fmt.Errorf("unsupported milestone format %q", filepath.Ext(path))
	}
}

// Discover loads every milestone definition found directly in dir, sorted by
// ID. Files that fail to parse are reported in the returned error slice and
// skipped; README.md is ignored. A missing directory is an error.
func Discover(dir string) ([]Milestone, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read milestones directory: %w", err)}
	}

	var (
		milestones []Milestone
		errs       []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !isMilestoneFile(entry.Name()) {
			continue
		}
		m, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load milestone from %s: %w", entry.Name(), err))
			continue
		}
		milestones = append(milestones, *m)
	}

	sort.Slice(milestones, func(i, j int) bool { return milestones[i].ID < milestones[j].ID })
	return milestones, errs
}

func isMilestoneFile(name string) bool {
	if strings.EqualFold(name, "README.md") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func parseMarkdown(path string, data []byte) (*Milestone, error) {
	content := string(data)
	stem := fileStem(path)

	m := &Milestone{
		ID:    stem,
		Title: stem,
		Stage: stageFromID(stem),
		Path:  path,
	}

	if match := titleRe.FindStringSubmatch(content); match != nil {
		m.Title = strings.TrimSpace(match[1])
	}
	if match := descriptionRe.FindStringSubmatch(content); match != nil {
		m.Description = strings.TrimSpace(match[1])
	}

	if match := dependenciesRe.FindStringSubmatch(content); match != nil {
		section := match[1]
		// "None specified" marks an intentionally empty dependency list.
		if !strings.Contains(section, "None specified") {
			for _, item := range depItemRe.FindAllStringSubmatch(section, -1) {
				if dep := strings.TrimSpace(item[1]); dep != "" {
					m.Dependencies = append(m.Dependencies, dep)
				}
			}
		}
	}

	m.Tasks = extractTasks(content, stem)
	return m, nil
}

// extractTasks slices the content at each "## Task N:" header and parses the
// body up to the next second-level heading.
func extractTasks(content, milestoneID string) []Task {
	headers := taskHeaderRe.FindAllStringSubmatchIndex(content, -1)

	var tasks []Task
	for i, loc := range headers {
		end := len(content)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		body := content[loc[1]:end]
		if brk := sectionBreakRe.FindStringIndex(body); brk != nil {
			body = body[:brk[0]]
		}

		task := Task{
			ID:                 fmt.Sprintf("%s-T%s", milestoneID, content[loc[2]:loc[3]]),
			Title:              strings.TrimSpace(content[loc[4]:loc[5]]),
			Requirements:       taskSection(body, requirementsRe),
			AcceptanceCriteria: taskSection(body, criteriaRe),
			Priority:           PriorityMedium,
			EstimatedMinutes:   defaultEstimateMinutes,
			MilestoneID:        milestoneID,
		}
		if match := priorityRe.FindStringSubmatch(body); match != nil {
			task.Priority = Priority(strings.ToLower(match[1]))
		}
		if match := estimateRe.FindStringSubmatch(body); match != nil {
			if n, err := strconv.Atoi(match[1]); err == nil {
				task.EstimatedMinutes = n
			}
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func taskSection(body string, re *regexp.Regexp) string {
	if match := re.FindStringSubmatch(body); match != nil {
		return strings.TrimSpace(match[1])
	}
	return ""
}

func parseYAML(path string, data []byte) (*Milestone, error) {
	var m Milestone
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse milestone file: %w", err)
	}
	applyDefaults(&m, fileStem(path))
	m.Path = path
	return &m, nil
}

// applyDefaults fills in the derived fields a YAML author may omit. Unknown
// priority values are normalized to lowercase but otherwise preserved so
// validation can report them.
func applyDefaults(m *Milestone, stem string) {
	if m.ID == "" {
		m.ID = stem
	}
	if m.Title == "" {
		m.Title = m.ID
	}
	if m.Stage == 0 {
		m.Stage = stageFromID(m.ID)
	}
	for i := range m.Tasks {
		t := &m.Tasks[i]
		if t.ID == "" {
			t.ID = fmt.Sprintf("%s-T%d", m.ID, i+1)
		}
		if t.Priority == "" {
			t.Priority = PriorityMedium
		} else {
			t.Priority = Priority(strings.ToLower(string(t.Priority)))
		}
		if t.EstimatedMinutes == 0 {
			t.EstimatedMinutes = defaultEstimateMinutes
		}
		t.MilestoneID = m.ID
	}
}

// stageFromID infers the stage from a leading digit run in the milestone ID,
// so "2b-api-handlers" lands in stage 2. IDs without a numeric prefix default
// to stage 1.
func stageFromID(id string) int {
	if match := stagePrefixRe.FindStringSubmatch(id); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil {
			return n
		}
	}
	return 1
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
