package planning

import (
	"context"
	"strings"

	"github.com/errandlabs/errand/pkg/models"
)

// RuleClassifier decides whether a message arriving mid-workflow belongs to
// the active task, starts an unrelated one, or abandons the current one.
type RuleClassifier struct{}

// NewRuleClassifier creates a rule-based interruption classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

var affirmatives = []string{
	"yes", "yep", "yeah", "sure", "ok", "okay", "confirm", "confirmed",
	"go ahead", "do it", "send it", "sounds good", "approve", "approved",
	"looks good", "proceed",
}

var negatives = []string{
	"no", "nope", "don't", "do not", "deny", "reject", "hold off",
}

var cancelPhrases = []string{
	"never mind", "nevermind", "forget it", "forget about it", "cancel that",
	"cancel this", "scrap that", "drop it", "stop", "abort",
}

var additivePrefixes = []string{
	"also", "and ", "include", "add ", "instead", "actually", "oh,", "one more",
	"plus ", "make sure",
}

var asidePrefixes = []string{
	"wait", "hold on", "quick question", "btw", "by the way", "unrelated",
	"before that", "while you're at it",
}

// IsAffirmative reports whether the text reads as approval. Used to resolve
// pending confirmations from free text.
func IsAffirmative(text string) bool {
	return matchesPhrase(text, affirmatives)
}

// IsNegative reports whether the text reads as refusal.
func IsNegative(text string) bool {
	return matchesPhrase(text, negatives) || matchesPhrase(text, cancelPhrases)
}

// IsCancellation reports whether the text abandons the whole task rather
// than declining one step.
func IsCancellation(text string) bool {
	return matchesPhrase(text, cancelPhrases)
}

func (c *RuleClassifier) Classify(_ context.Context, input string, workflow *models.Workflow) (Interruption, error) {
	lowered := strings.ToLower(strings.TrimSpace(input))

	// A workflow waiting on the user treats a plain yes/no as part of the
	// conversation, never as a new task.
	if workflow.Status == models.WorkflowStatusAwaitingConfirmation ||
		workflow.Status == models.WorkflowStatusAwaitingUserInput {
		if IsAffirmative(lowered) || IsNegative(lowered) {
			return Interruption{Kind: InterruptContinue, Confidence: 0.95}, nil
		}
	}

	if matchesPhrase(lowered, cancelPhrases) {
		return Interruption{Kind: InterruptClear, Confidence: 0.9}, nil
	}

	// A workflow that asked a question treats the next message as the answer.
	if workflow.Status == models.WorkflowStatusAwaitingUserInput {
		return Interruption{Kind: InterruptContinue, Confidence: 0.9}, nil
	}

	for _, prefix := range additivePrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return Interruption{Kind: InterruptContinue, Confidence: 0.85}, nil
		}
	}

	overlap := tokenOverlap(lowered, workflow.OriginalRequest)

	for _, prefix := range asidePrefixes {
		if strings.HasPrefix(lowered, prefix) && !overlap {
			return Interruption{Kind: InterruptPause, Confidence: 0.8}, nil
		}
	}

	if overlap {
		return Interruption{Kind: InterruptContinue, Confidence: 0.7}, nil
	}

	// A fresh actionable request with its own domain is an unrelated task.
	if len(detectDomains(lowered)) > 0 {
		return Interruption{Kind: InterruptPause, Confidence: 0.6}, nil
	}

	return Interruption{
		Kind:       InterruptAskUser,
		Confidence: 0.4,
		Question:   "Is this about the task I'm working on, or something new?",
	}, nil
}

func matchesPhrase(text string, phrases []string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	lowered = strings.TrimRight(lowered, ".!?, ")

	for _, phrase := range phrases {
		if lowered == phrase || strings.HasPrefix(lowered, phrase+" ") ||
			strings.HasPrefix(lowered, phrase+",") {
			return true
		}
	}

	return false
}

// stopwords excluded from content-word overlap checks.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "for": true, "of": true,
	"and": true, "my": true, "me": true, "i": true, "you": true, "it": true,
	"that": true, "this": true, "is": true, "in": true, "on": true, "at": true,
	"with": true, "can": true, "please": true, "about": true,
}

// tokenOverlap reports whether the two texts share at least one content word.
func tokenOverlap(a, b string) bool {
	words := map[string]bool{}

	for _, word := range strings.Fields(strings.ToLower(a)) {
		word = strings.Trim(word, ".,!?")
		if len(word) > 2 && !stopwords[word] {
			words[word] = true
		}
	}

	for _, word := range strings.Fields(strings.ToLower(b)) {
		word = strings.Trim(word, ".,!?")
		if len(word) > 2 && !stopwords[word] && words[word] {
			return true
		}
	}

	return false
}
