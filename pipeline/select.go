package pipeline

import (
	"context"
	"fmt"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/label"
	"github.com/samber/lo"
)

// SelectTemplate picks the pod template serving the attempt's label.
type SelectTemplate struct{}

// SelectTemplate implements Step
var _ Step = SelectTemplate{}

func (SelectTemplate) Name() string { return "select-template" }

func (SelectTemplate) Handle(_ context.Context, a *Attempt) error {
	t, err := Select(a.Templates, a.Label)
	if err != nil {
		return fmt.Errorf("%w (label '%s')", err, a.RawLabel)
	}

	a.Log.Debug("Selected pod template", "template", t.ID)
	return a.template.put(t)
}

// Select returns the first template, in configured order, that has no labels
// or whose labels satisfy expr. A nil expr selects the first template.
func Select(templates []cloud.PodTemplate, expr label.Expression) (cloud.PodTemplate, error) {
	if len(templates) == 0 {
		return cloud.PodTemplate{}, ErrNoTemplates
	}

	t, ok := lo.Find(templates, func(t cloud.PodTemplate) bool { return t.Matches(expr) })
	if !ok {
		return cloud.PodTemplate{}, ErrNoMatchingTemplate
	}
	return t, nil
}
