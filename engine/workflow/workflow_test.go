package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func validWorkflow() *Workflow {
	return &Workflow{
		Name: "new-email-to-slack",
		Steps: []Step{
			{ID: "1", Type: StepTrigger, AppName: "gmail", TriggerID: "new_email"},
			{ID: "2", Type: StepAction, AppName: "slack", ActionID: "send_channel_message"},
		},
	}
}

func TestWorkflow_Validate(t *testing.T) {
	t.Run("Should accept a minimal trigger-then-action workflow", func(t *testing.T) {
		require.NoError(t, validWorkflow().Validate())
	})

	t.Run("Should reject a workflow with no trigger step", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps[0].Type = StepAction
		assert.Error(t, wf.Validate())
	})

	t.Run("Should reject a workflow with two trigger steps", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps = append(wf.Steps, Step{ID: "3", Type: StepTrigger})
		assert.Error(t, wf.Validate())
	})

	t.Run("Should reject a workflow with no action step", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps = wf.Steps[:1]
		assert.Error(t, wf.Validate())
	})

	t.Run("Should reject duplicate step ids", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps[1].ID = "1"
		assert.Error(t, wf.Validate())
	})

	t.Run("Should reject an action.next referencing an unknown step", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps[1].Next = strPtr("99")
		assert.Error(t, wf.Validate())
	})

	t.Run("Should reject a condition clause referencing an unknown step", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps = append(wf.Steps, Step{
			ID:   "3",
			Type: StepCondition,
			Conditions: []ConditionClause{
				{If: "{{subject}} contains 'urgent'", Then: strPtr("99")},
			},
		})
		assert.Error(t, wf.Validate())
	})

	t.Run("Should accept a condition step whose clauses resolve", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps = append(wf.Steps, Step{
			ID:   "3",
			Type: StepCondition,
			Conditions: []ConditionClause{
				{If: "{{subject}} contains 'urgent'", Then: strPtr("2")},
				{Else: strPtr("2")},
			},
		})
		require.NoError(t, wf.Validate())
	})
}

func TestWorkflow_EffectiveStartStepID(t *testing.T) {
	t.Run("Should fall back to the default when unset", func(t *testing.T) {
		wf := &Workflow{}
		assert.Equal(t, DefaultStartStepID, wf.EffectiveStartStepID())
	})

	t.Run("Should return the explicit value when set", func(t *testing.T) {
		wf := &Workflow{StartStepID: "5"}
		assert.Equal(t, "5", wf.EffectiveStartStepID())
	})
}

func TestWorkflow_StepByID(t *testing.T) {
	t.Run("Should find an existing step", func(t *testing.T) {
		wf := validWorkflow()
		step, ok := wf.StepByID("2")
		require.True(t, ok)
		assert.Equal(t, StepAction, step.Type)
	})

	t.Run("Should report false for a missing step", func(t *testing.T) {
		wf := validWorkflow()
		_, ok := wf.StepByID("missing")
		assert.False(t, ok)
	})
}
