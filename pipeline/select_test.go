package pipeline

import (
	"context"
	"testing"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/label"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	templates := []cloud.PodTemplate{
		newTestTemplate("small", "linux small"),
		newTestTemplate("large", "linux large docker"),
		newTestTemplate("windows", "windows"),
		newTestTemplate("any", ""),
	}

	tests := []struct {
		label    string
		expected string
	}{
		{"", "small"},
		{"linux", "small"},
		{"large", "large"},
		{"linux && docker", "large"},
		{"windows", "windows"},
		{"!linux", "windows"},
		{"arm", "any"},
	}

	for _, tt := range tests {
		var expr label.Expression
		if tt.label != "" {
			expr = label.MustParse(tt.label)
		}

		// Selection is a pure function of its inputs.
		for range 10 {
			selected, err := Select(templates, expr)
			require.NoError(t, err, tt.label)
			assert.Equal(t, tt.expected, selected.ID, tt.label)
		}
	}
}

func TestSelectNoMatch(t *testing.T) {
	templates := []cloud.PodTemplate{
		newTestTemplate("small", "linux small"),
		newTestTemplate("large", "linux large"),
	}

	_, err := Select(templates, label.MustParse("windows"))
	assert.ErrorIs(t, err, ErrNoMatchingTemplate)

	_, err = Select(nil, nil)
	assert.ErrorIs(t, err, ErrNoTemplates)
}

func TestSelectTemplateStep(t *testing.T) {
	c := newTestCloud("select", newTestTemplate("small", "small"), newTestTemplate("large", "large"))
	a := newTestAttempt(c, "large")

	require.NoError(t, SelectTemplate{}.Handle(context.Background(), a))

	selected, err := a.Template()
	require.NoError(t, err)
	assert.Equal(t, "large", selected.ID)

	// The slot is written once.
	assert.ErrorIs(t, SelectTemplate{}.Handle(context.Background(), a), ErrAlreadySet)
}

func TestNoMatchCreatesNothing(t *testing.T) {
	c := newTestCloud("no-match", newTestTemplate("linux", "linux"))
	cluster := &mockCluster{}
	registry := newMockRegistry()
	executor := NewExecutor(NewChain(Dependencies{Cluster: cluster, Registry: registry, Timing: fastTiming}))

	_, err := executor.Execute(context.Background(), newTestAttempt(c, "windows"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatchingTemplate)
	assert.True(t, IsPolicy(err))
	assert.Empty(t, cluster.getCreated())
	assert.Zero(t, registry.len())
}
