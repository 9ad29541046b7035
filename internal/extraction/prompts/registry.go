package prompts

import (
	"fmt"
	"sync"
)

var (
	mu       sync.RWMutex
	registry = map[PromptName]Spec{}
)

// RegisterSpec adds a prompt spec to the registry. Registering the same name
// twice panics; prompts are registered once at init.
func RegisterSpec(spec Spec) {
	if spec.Name == "" {
		panic("prompts: RegisterSpec with empty name")
	}
	if spec.Schema == nil {
		panic(fmt.Sprintf("prompts: %s has no schema", spec.Name))
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[spec.Name]; exists {
		panic(fmt.Sprintf("prompts: %s registered twice", spec.Name))
	}
	registry[spec.Name] = spec
}

func lookup(name PromptName) (Spec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	spec, ok := registry[name]
	return spec, ok
}

func init() {
	RegisterAll()
}
