package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandlabs/errand/pkg/models"
)

func TestRuleClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status models.WorkflowStatus
		input  string
		want   InterruptKind
	}{
		{
			name:   "affirmative while awaiting confirmation",
			status: models.WorkflowStatusAwaitingConfirmation,
			input:  "yes, go ahead",
			want:   InterruptContinue,
		},
		{
			name:   "denial while awaiting confirmation",
			status: models.WorkflowStatusAwaitingConfirmation,
			input:  "no, hold off",
			want:   InterruptContinue,
		},
		{
			name:   "answer to a pending question continues",
			status: models.WorkflowStatusAwaitingUserInput,
			input:  "I mean my calendar for tomorrow",
			want:   InterruptContinue,
		},
		{
			name:   "cancellation abandons the task",
			status: models.WorkflowStatusActive,
			input:  "never mind, forget it",
			want:   InterruptClear,
		},
		{
			name:   "additive refinement continues",
			status: models.WorkflowStatusActive,
			input:  "also include Lisa",
			want:   InterruptContinue,
		},
		{
			name:   "aside without overlap pauses",
			status: models.WorkflowStatusActive,
			input:  "wait, what's the weather today?",
			want:   InterruptPause,
		},
		{
			name:   "content overlap continues",
			status: models.WorkflowStatusActive,
			input:  "make the report the latest quarterly one",
			want:   InterruptContinue,
		},
		{
			name:   "fresh actionable request pauses",
			status: models.WorkflowStatusActive,
			input:  "what's on my calendar tomorrow?",
			want:   InterruptPause,
		},
		{
			name:   "unclassifiable message asks the user",
			status: models.WorkflowStatusActive,
			input:  "hmm interesting",
			want:   InterruptAskUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			classifier := NewRuleClassifier()
			workflow := models.NewWorkflow("session-1", "user-1", "Email the quarterly report to John")
			workflow.Status = tt.status

			interruption, err := classifier.Classify(t.Context(), tt.input, workflow)
			require.NoError(t, err)

			assert.Equal(t, tt.want, interruption.Kind, "input: %q", tt.input)
			assert.Positive(t, interruption.Confidence)

			if tt.want == InterruptAskUser {
				assert.NotEmpty(t, interruption.Question)
			}
		})
	}
}

func TestIsAffirmativeAndIsNegative(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAffirmative("Yes"))
	assert.True(t, IsAffirmative("go ahead!"))
	assert.True(t, IsAffirmative("sounds good, send it"))
	assert.False(t, IsAffirmative("no way"))

	assert.True(t, IsNegative("no"))
	assert.True(t, IsNegative("don't send that"))
	assert.True(t, IsNegative("never mind"))
	assert.False(t, IsNegative("yes please"))
}
