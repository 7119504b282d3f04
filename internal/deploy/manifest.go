package deploy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest carries per-service overrides for the fixed catalog. It cannot
// add services — the stack is fixed; it can retag images, remap published
// ports, and add environment.
type Manifest struct {
	Services map[string]Override `yaml:"services"`
}

// Override adjusts one catalog service.
type Override struct {
	Image string            `yaml:"image"`
	Ports map[string]string `yaml:"ports"`
	Env   map[string]string `yaml:"env"`
}

// LoadManifest reads a deploy manifest. A missing file is not an error:
// the catalog defaults apply.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading deploy manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing deploy manifest %s: %w", path, err)
	}
	return &m, nil
}

// Apply returns the services with the manifest's overrides folded in.
func (m *Manifest) Apply(services []Service) []Service {
	if m == nil {
		return services
	}
	out := make([]Service, len(services))
	for i, s := range services {
		ov, ok := m.Services[s.Name]
		if !ok {
			out[i] = s
			continue
		}
		if ov.Image != "" {
			s.Image = ov.Image
		}
		if len(ov.Ports) > 0 {
			s.Ports = ov.Ports
		}
		if len(ov.Env) > 0 {
			env := make(map[string]string, len(s.Env)+len(ov.Env))
			for k, v := range s.Env {
				env[k] = v
			}
			for k, v := range ov.Env {
				env[k] = v
			}
			s.Env = env
		}
		out[i] = s
	}
	return out
}
