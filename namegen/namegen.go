package namegen

import (
	"fmt"
	"regexp"
	"strings"

	vendor "github.com/anandvarma/namegen"
	utilrand "k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/apimachinery/pkg/util/validation"
)

var gen = vendor.New()

// Kubernetes object names are limited to DNS-1123 labels for pods we create.
const maxNameLength = validation.DNS1123LabelMaxLength

const suffixLength = 5

var invalidChars = regexp.MustCompile(`[^a-z0-9-]+`)

type ID string

func Get() ID {
	return ID(sanitize(gen.Get()))
}

func (id ID) String() string {
	return string(id)
}

// PodName returns a name suitable for a pod (and the agent backed by it).
// Names are made unique without coordination by appending a random suffix,
// so concurrent callers never need to agree on anything.
func PodName(prefix string) string {
	suffix := utilrand.String(suffixLength)
	base := strings.Trim(sanitize(prefix), "-")
	word := strings.Trim(Get().String(), "-")

	parts := make([]string, 0, 2)
	for _, p := range []string{base, word} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	name := strings.Join(parts, "-")

	if budget := maxNameLength - len(suffix) - 1; len(name) > budget {
		name = strings.TrimRight(name[:budget], "-")
	}
	if name == "" {
		return "agent-" + suffix
	}
	return fmt.Sprintf("%s-%s", name, suffix)
}

func sanitize(s string) string {
	return invalidChars.ReplaceAllString(strings.ToLower(s), "-")
}
