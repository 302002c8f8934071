package assistant

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/errtrack/pkg/models"
)

const appOverview = `PAGES:
1. Dashboard: totals, unresolved and resolved counts, active projects, recent errors
2. Projects: create projects and copy their API keys for SDK integration
3. Errors: every error group, filterable by project, severity, status, date range and search
4. Error Detail: stack trace, occurrences, status, assignee and discussion
5. Register Incident: file an error by hand against one of your projects
6. Notifications: status changes, assignments and comments on your errors

CONCEPTS:
- Reports with the same type, normalized message, file and function share one error group
- Severity levels: critical, error, warning, info. A group's severity only escalates
- Statuses: unresolved, resolved, ignored
- Internal comments are visible to admins only`

// SystemPrompt describes the app, the user's projects and their current page.
func SystemPrompt(hc models.HelpContext, projects []*models.Project) string {
	var b strings.Builder
	b.WriteString("You are the help assistant for errtrack, an error tracking platform similar to Sentry.\n\n")

	b.WriteString("USER CONTEXT:\n")
	page := hc.CurrentPage
	if page == "" {
		page = "unknown"
	}
	fmt.Fprintf(&b, "- Current page: %s\n", page)
	if len(projects) == 0 {
		b.WriteString("- Projects: none yet\n")
	} else {
		b.WriteString("- Projects:\n")
		for _, p := range projects {
			fmt.Fprintf(&b, "  - %s (ID: %s)\n", p.Name, p.ID)
		}
	}
	if len(hc.AvailableFeatures) > 0 {
		fmt.Fprintf(&b, "- Available features: %s\n", strings.Join(hc.AvailableFeatures, ", "))
	}

	b.WriteString("\n")
	b.WriteString(appOverview)
	b.WriteString("\n\nBe concise and friendly. Keep to questions about errtrack and error tracking; politely redirect anything else.")
	return b.String()
}

// keywordAnswers are checked in order; the first rule with a matching keyword wins.
var keywordAnswers = []struct {
	keywords []string
	answer   string
}{
	{
		[]string{"project", "create"},
		`To create a project, open the Projects page and choose "Create Project". Each project gets an API key that SDKs use to report errors.`,
	},
	{
		[]string{"error", "view"},
		"The Errors page lists every error group. Filter by severity (critical, error, warning, info) and status (unresolved, resolved, ignored), or search by message and file. Open a group to see its stack trace and occurrences.",
	},
	{
		[]string{"dashboard"},
		"The Dashboard shows total, unresolved and resolved errors, your active projects, and the most recently seen errors.",
	},
	{
		[]string{"sdk", "integrate"},
		"SDKs capture errors and send them to the report endpoint. Copy your project's API key from the Projects page and pass it as the X-API-Key header.",
	},
	{
		[]string{"help", "how"},
		"I can help you with:\n- Creating projects\n- Viewing and filtering errors\n- Using the dashboard\n- Integrating SDKs\n- Understanding severity levels\nWhat would you like to know more about?",
	},
}

const defaultAnswer = "I'm here to help with errtrack. You can ask about:\n- Navigating the Dashboard, Projects and Errors pages\n- Creating and managing projects\n- Understanding and triaging errors\n- Integrating SDKs\n- Filtering and search\nWhat would you like to know?"

// FallbackAnswer picks a canned answer by keyword, case-insensitively.
func FallbackAnswer(message string) string {
	lower := strings.ToLower(message)
	for _, rule := range keywordAnswers {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.answer
			}
		}
	}
	return defaultAnswer
}
