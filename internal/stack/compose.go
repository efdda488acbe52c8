package stack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// Compose labels the harness reads from service definitions.
const (
	labelHealth  = "simstack.health"
	labelOrder   = "simstack.order"
	labelMaxWait = "simstack.max-wait"
	labelTarget  = "simstack.target"
)

// Override adjusts a single service's descriptor for compose files the
// harness does not own. Overrides win over compose labels.
type Override struct {
	Health  string
	Order   *int
	MaxWait time.Duration
	Target  string
}

// UnmarshalYAML parses max_wait as a Go duration string.
func (o *Override) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Health  string `yaml:"health"`
		Order   *int   `yaml:"order"`
		MaxWait string `yaml:"max_wait"`
		Target  string `yaml:"target"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	o.Health = raw.Health
	o.Order = raw.Order
	o.Target = raw.Target
	if raw.MaxWait != "" {
		wait, err := time.ParseDuration(raw.MaxWait)
		if err != nil {
			return fmt.Errorf("invalid max_wait %q: %w", raw.MaxWait, err)
		}
		o.MaxWait = wait
	}
	return nil
}

type overridesFile struct {
	Services map[string]Override `yaml:"services"`
}

// LoadOverrides parses a YAML overrides file:
// services: {name: {health, order, max_wait, target}}.
// Returns nil when path is empty.
func LoadOverrides(path string) (map[string]Override, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides file: %w", err)
	}
	var file overridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse overrides file: %w", err)
	}
	return file.Services, nil
}

// LoadComposeFile builds a Registry from a docker-compose file on disk.
func LoadComposeFile(ctx context.Context, path string, overrides map[string]Override) (*Registry, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	return ParseCompose(ctx, body, overrides)
}

// ParseCompose turns compose content into validated service descriptors.
// Startup order comes from depends_on depth unless a simstack.order label
// or an override names one explicitly.
func ParseCompose(ctx context.Context, body []byte, overrides map[string]Override) (*Registry, error) {
	if len(body) == 0 {
		return nil, errors.New("compose body is empty")
	}

	details := types.ConfigDetails{
		WorkingDir: ".",
		ConfigFiles: []types.ConfigFile{
			{
				Filename: "compose.yml",
				Content:  body,
			},
		},
		Environment: types.Mapping{},
	}

	project, err := loader.LoadWithContext(ctx, details, func(opts *loader.Options) {
		opts.SetProjectName("simstack", false)
	})
	if err != nil {
		return nil, fmt.Errorf("load compose: %w", err)
	}
	if len(project.Services) == 0 {
		return nil, errors.New("compose has no services")
	}

	depths, err := dependencyDepths(project.Services)
	if err != nil {
		return nil, err
	}

	descriptors := make([]ServiceDescriptor, 0, len(project.Services))
	for name, service := range project.Services {
		if service.Image == "" {
			return nil, fmt.Errorf("service %q missing image", name)
		}

		port, target, err := publishedPort(name, service.Ports)
		if err != nil {
			return nil, err
		}

		descriptor := ServiceDescriptor{
			Name:         name,
			Image:        service.Image,
			Port:         port,
			TargetPort:   target,
			Health:       HealthTCP,
			StartupOrder: depths[name],
			Env:          flattenEnvironment(service.Environment),
		}

		if value, ok := service.Labels[labelHealth]; ok {
			descriptor.Health = HealthCheck(value)
		}
		if value, ok := service.Labels[labelOrder]; ok {
			order, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("service %q: invalid %s: %w", name, labelOrder, err)
			}
			descriptor.StartupOrder = order
		}
		if value, ok := service.Labels[labelMaxWait]; ok {
			wait, err := time.ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("service %q: invalid %s: %w", name, labelMaxWait, err)
			}
			descriptor.MaxWait = wait
		}
		if value, ok := service.Labels[labelTarget]; ok {
			descriptor.Target = value
		}

		if override, ok := overrides[name]; ok {
			applyOverride(&descriptor, override)
		}

		descriptors = append(descriptors, descriptor)
	}

	return NewRegistry(descriptors)
}

func applyOverride(descriptor *ServiceDescriptor, override Override) {
	if override.Health != "" {
		descriptor.Health = HealthCheck(override.Health)
	}
	if override.Order != nil {
		descriptor.StartupOrder = *override.Order
	}
	if override.MaxWait > 0 {
		descriptor.MaxWait = override.MaxWait
	}
	if override.Target != "" {
		descriptor.Target = override.Target
	}
}

func publishedPort(name string, ports []types.ServicePortConfig) (int, int, error) {
	for _, p := range ports {
		if p.Published == "" {
			continue
		}
		published, err := strconv.Atoi(p.Published)
		if err != nil {
			return 0, 0, fmt.Errorf("service %q: invalid published port %q", name, p.Published)
		}
		return published, int(p.Target), nil
	}
	return 0, 0, fmt.Errorf("service %q has no published port to probe", name)
}

func flattenEnvironment(env types.MappingWithEquals) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for key, value := range env {
		if value == nil {
			continue
		}
		out = append(out, key+"="+*value)
	}
	sort.Strings(out)
	return out
}

// dependencyDepths assigns each service the length of its longest
// depends_on chain, so dependencies always carry a lower order.
func dependencyDepths(services types.Services) (map[string]int, error) {
	depths := make(map[string]int, len(services))
	visiting := make(map[string]bool)

	var walk func(name string) (int, error)
	walk = func(name string) (int, error) {
		if depth, ok := depths[name]; ok {
			return depth, nil
		}
		if visiting[name] {
			return 0, fmt.Errorf("dependency cycle through service %q", name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		service, ok := services[name]
		if !ok {
			return 0, fmt.Errorf("depends_on references unknown service %q", name)
		}

		depth := 0
		for dependency := range service.DependsOn {
			parent, err := walk(dependency)
			if err != nil {
				return 0, err
			}
			if parent+1 > depth {
				depth = parent + 1
			}
		}
		depths[name] = depth
		return depth, nil
	}

	for name := range services {
		if _, err := walk(name); err != nil {
			return nil, err
		}
	}
	return depths, nil
}
