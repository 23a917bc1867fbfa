// Package cloud holds the already-parsed configuration of the Kubernetes
// clouds agents are provisioned into, together with their pod templates.
package cloud

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gammadia/kubeagents/label"
	"github.com/gammadia/kubeagents/namegen"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/api/validate/content"
)

// NamePrefix is used to name clouds that were configured without a name.
const NamePrefix = "kubecloud-"

const DefaultNamespace = "default"

const (
	DefaultPoolSize           = 10
	DefaultPollInterval       = 2 * time.Second
	DefaultPodRunningTimeout  = 5 * time.Minute
	DefaultAgentOnlineTimeout = 5 * time.Minute
)

// CleanupPolicy decides what happens to a pod whose attempt failed after
// the pod had been created (typically a readiness timeout).
type CleanupPolicy string

const (
	// CleanupDelete deletes the pod, best effort.
	CleanupDelete CleanupPolicy = "delete"
	// CleanupKeep leaves the pod for an operator to inspect.
	CleanupKeep CleanupPolicy = "keep"
)

type Config struct {
	Clouds []Cloud `yaml:"clouds"`
}

type Cloud struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display-name"`

	// Endpoint overrides the API server URL found in the kubeconfig.
	Endpoint   string `yaml:"endpoint"`
	Kubeconfig string `yaml:"kubeconfig"`
	Context    string `yaml:"context"`
	Namespace  string `yaml:"namespace"`

	// InstanceCap is the maximum number of live agent pods, 0 meaning unlimited.
	InstanceCap int `yaml:"instance-cap"`
	// PoolSize bounds how many provisioning attempts run at the same time.
	PoolSize int `yaml:"pool-size"`

	PollInterval       time.Duration `yaml:"poll-interval"`
	PodRunningTimeout  time.Duration `yaml:"pod-running-timeout"`
	AgentOnlineTimeout time.Duration `yaml:"agent-online-timeout"`

	Cleanup CleanupPolicy `yaml:"cleanup"`

	Templates []PodTemplate `yaml:"templates"`
}

// PodTemplate is immutable once loaded.
type PodTemplate struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	// Labels is the whitespace separated list of labels advertised by agents
	// created from this template. Empty matches any demand.
	Labels string `yaml:"labels"`
	// Pod is the pod manifest, rendered as a Go template before decoding.
	Pod string `yaml:"pod"`
}

func (t PodTemplate) LabelSet() label.Set {
	return label.ParseSet(t.Labels)
}

// Matches reports whether an agent created from this template satisfies expr.
// A nil expression (no demand constraint) matches every template.
func (t PodTemplate) Matches(expr label.Expression) bool {
	set := t.LabelSet()
	return expr == nil || set.IsEmpty() || expr.Matches(set)
}

func (c *Cloud) ApplyDefaults() {
	if c.Name == "" {
		c.Name = NamePrefix + namegen.Get().String()
	}
	if c.DisplayName == "" {
		c.DisplayName = c.Name
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PodRunningTimeout == 0 {
		c.PodRunningTimeout = DefaultPodRunningTimeout
	}
	if c.AgentOnlineTimeout == 0 {
		c.AgentOnlineTimeout = DefaultAgentOnlineTimeout
	}
	if c.Cleanup == "" {
		c.Cleanup = CleanupDelete
	}
}

func (c *Cloud) Template(id string) (PodTemplate, bool) {
	return lo.Find(c.Templates, func(t PodTemplate) bool { return t.ID == id })
}

func (c Cloud) String() string {
	return fmt.Sprintf("Cloud [%s@%s/%s]", c.DisplayName, lo.Ternary(c.Endpoint != "", c.Endpoint, "kubeconfig"), c.Namespace)
}

func (c *Config) ApplyDefaults() {
	for i := range c.Clouds {
		c.Clouds[i].ApplyDefaults()
	}
}

func (c *Config) Cloud(name string) (Cloud, bool) {
	return lo.Find(c.Clouds, func(cl Cloud) bool { return cl.Name == name })
}

func (c *Config) Validate() error {
	if len(c.Clouds) == 0 {
		return errors.New("at least one cloud is required")
	}

	names := map[string]bool{}
	for _, cl := range c.Clouds {
		if names[cl.Name] {
			return fmt.Errorf("clouds[%s] is defined more than once", cl.Name)
		}
		names[cl.Name] = true

		if err := cl.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// checkLabelValue rejects names that could not label the cloud's pods.
func checkLabelValue(s string) error {
	if s == "" {
		return errors.New("must not be empty")
	}
	if errs := content.IsLabelValue(s); len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *Cloud) Validate() error {
	prefix := fmt.Sprintf("clouds[%s]", c.Name)

	if err := checkLabelValue(c.Name); err != nil {
		return fmt.Errorf("%s.name is not a valid label value: %w", prefix, err)
	}
	if c.Namespace == "" {
		return fmt.Errorf("%s.namespace is required", prefix)
	}
	if c.InstanceCap < 0 {
		return fmt.Errorf("%s.instance-cap must not be negative", prefix)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("%s.pool-size must be greater than 0", prefix)
	}
	for _, d := range []lo.Entry[string, time.Duration]{
		{Key: "poll-interval", Value: c.PollInterval},
		{Key: "pod-running-timeout", Value: c.PodRunningTimeout},
		{Key: "agent-online-timeout", Value: c.AgentOnlineTimeout},
	} {
		if d.Value <= 0 {
			return fmt.Errorf("%s.%s must be positive", prefix, d.Key)
		}
	}
	if c.Cleanup != CleanupDelete && c.Cleanup != CleanupKeep {
		return fmt.Errorf("%s.cleanup must be one of '%s', '%s'", prefix, CleanupDelete, CleanupKeep)
	}
	if len(c.Templates) == 0 {
		return fmt.Errorf("%s.templates must not be empty", prefix)
	}

	ids := map[string]bool{}
	descriptions := map[string]bool{}
	for i, t := range c.Templates {
		tprefix := fmt.Sprintf("%s.templates[%d]", prefix, i)
		if err := checkLabelValue(t.ID); err != nil {
			return fmt.Errorf("%s.id is not a valid label value: %w", tprefix, err)
		}
		if ids[t.ID] {
			return fmt.Errorf("%s.id '%s' is not unique", tprefix, t.ID)
		}
		ids[t.ID] = true

		if t.Description == "" {
			return fmt.Errorf("%s.description is required", tprefix)
		}
		if descriptions[t.Description] {
			return fmt.Errorf("%s.description '%s' is not unique", tprefix, t.Description)
		}
		descriptions[t.Description] = true

		if t.Pod == "" {
			return fmt.Errorf("%s.pod is required", tprefix)
		}
	}

	return nil
}
