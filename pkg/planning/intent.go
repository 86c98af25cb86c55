package planning

import (
	"regexp"
	"strings"

	"github.com/errandlabs/errand/pkg/models"
)

// gathered-data key prefixes shared between the rule planner and analyzer.
const (
	outcomeKeyPrefix = "outcome:"
	contactKeyPrefix = "contact:"
	blockedKeyPrefix = "blocked:"
	inputKeyPrefix   = "input"
	handledKeyPrefix = "handled:"
)

var domainKeywords = map[models.Domain][]string{
	models.DomainEmail: {
		"email", "e-mail", "mail", "inbox", "reply", "forward", "attachment",
	},
	models.DomainCalendar: {
		"calendar", "meeting", "event", "schedule", "appointment", "availability",
		"free time", "when is", "reschedule", "book",
	},
	models.DomainContacts: {
		"contact", "phone number", "address for", "address of", "who is",
	},
	models.DomainMessaging: {
		"message", "text ", "slack", "dm ", "ping ",
	},
}

var destructiveVerbs = []string{
	"delete", "remove", "cancel", "decline", "clear out",
}

var writeVerbs = []string{
	"send", "email", "reply", "forward", "schedule", "create", "add", "invite",
	"book", "message", "text", "post", "update", "move", "reschedule", "share",
}

// readCues override write verbs: "check my email" is a read even though
// "email" alone would suggest a send.
var readCues = []string{
	"check", "read", "show", "list", "find", "look up", "what", "when", "who",
	"any new", "do i have", "summarize",
}

// detectDomains returns every domain whose keywords appear in the text, in a
// stable order.
func detectDomains(text string) []models.Domain {
	lowered := strings.ToLower(text)

	var matched []models.Domain

	for _, domain := range models.Domains() {
		for _, keyword := range domainKeywords[domain] {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, domain)

				break
			}
		}
	}

	return matched
}

// pickDomain resolves multiple plausible domains by preferring one that
// already has gathered data, avoiding redundant discovery steps.
func pickDomain(candidates []models.Domain, workflow *models.Workflow) (models.Domain, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	for _, domain := range candidates {
		if workflow.HasData(outcomeKeyPrefix + string(domain)) {
			return domain, true
		}
	}

	return candidates[0], true
}

// detectRisk classifies the side effects implied by the request text.
func detectRisk(text string) models.RiskLevel {
	lowered := strings.ToLower(text)

	for _, verb := range destructiveVerbs {
		if containsWord(lowered, verb) {
			return models.RiskDestructive
		}
	}

	for _, cue := range readCues {
		if strings.Contains(lowered, cue) {
			return models.RiskRead
		}
	}

	for _, verb := range writeVerbs {
		if containsWord(lowered, verb) {
			return models.RiskWrite
		}
	}

	return models.RiskRead
}

// DetectDomain resolves the most likely domain for free text outside any
// workflow context, e.g. a side question arriving mid-task.
func DetectDomain(text string) (models.Domain, bool) {
	domains := detectDomains(text)
	if len(domains) == 0 {
		return "", false
	}

	return domains[0], true
}

// DetectRisk classifies the side effects implied by free text.
func DetectRisk(text string) models.RiskLevel {
	return detectRisk(text)
}

// Block marks a step's intent as off-limits for future planning, e.g. after
// the user denied it. The planner will ask for direction instead of planning
// an equivalent step again.
func Block(workflow *models.Workflow, step *models.Step, reason string) {
	workflow.Record(blockedKeyPrefix+fingerprint(step.TargetDomain, step.Request), reason)
}

var recipientPattern = regexp.MustCompile(`\b(?:to|with|for|include|add|cc)\s+([A-Z][a-z]+)\b`)

// extractRecipients pulls capitalized person names following a preposition,
// e.g. "email the report to John" -> ["John"].
func extractRecipients(text string) []string {
	matches := recipientPattern.FindAllStringSubmatch(text, -1)

	seen := map[string]bool{}

	var names []string

	for _, match := range matches {
		name := match[1]
		if !seen[name] {
			seen[name] = true

			names = append(names, name)
		}
	}

	return names
}

// fingerprint normalizes a step's intent so functionally equivalent requests
// compare equal.
func fingerprint(domain models.Domain, request string) string {
	return string(domain) + "|" + strings.Join(strings.Fields(strings.ToLower(request)), " ")
}

func containsWord(text, word string) bool {
	idx := 0

	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}

		start := idx + pos
		end := start + len(word)

		startOK := start == 0 || !isLetter(text[start-1])
		endOK := end == len(text) || !isLetter(text[end])

		if startOK && endOK {
			return true
		}

		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// userInputs returns the interruption texts merged into the workflow, keyed
// as input, input#2, ... along with their keys.
func userInputs(workflow *models.Workflow) map[string]string {
	inputs := map[string]string{}

	for key, value := range workflow.GatheredData {
		if key != inputKeyPrefix && !strings.HasPrefix(key, inputKeyPrefix+"#") {
			continue
		}

		if text, ok := value.(string); ok {
			inputs[key] = text
		}
	}

	return inputs
}
