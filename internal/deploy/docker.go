package deploy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ContainerAPI is the slice of the Docker client the deployer needs.
// Satisfied by *client.Client.
type ContainerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
}

// Create creates and starts the service's container, returning its ID.
// The container config mirrors what RunCommand renders.
func Create(ctx context.Context, cli ContainerAPI, s Service) (string, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for host, cont := range s.Ports {
		port, err := nat.NewPort("tcp", cont)
		if err != nil {
			return "", fmt.Errorf("service %s: invalid port %q: %w", s.Name, cont, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostPort: host}}
	}

	env := make([]string, 0, len(s.Env))
	for key, value := range s.Env {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)

	binds := make([]string, 0, len(s.Volumes))
	for host, cont := range s.Volumes {
		binds = append(binds, host+":"+cont)
	}
	sort.Strings(binds)

	config := &container.Config{
		Image:        s.Image,
		Env:          env,
		Cmd:          s.Command,
		ExposedPorts: exposed,
	}
	if s.Entrypoint != "" {
		config.Entrypoint = []string{s.Entrypoint}
	}

	hostConfig := &container.HostConfig{
		Binds:        binds,
		PortBindings: bindings,
	}
	if s.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(s.Restart),
		}
	}

	resp, err := cli.ContainerCreate(ctx, config, hostConfig, nil, nil, s.ContainerName())
	if err != nil {
		return "", fmt.Errorf("creating container %s: %w", s.ContainerName(), err)
	}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting container %s: %w", s.ContainerName(), err)
	}
	return resp.ID, nil
}

// PortSummary is a short human-readable port list for log lines.
func PortSummary(s Service) string {
	if len(s.Ports) == 0 {
		return "none"
	}
	pairs := make([]string, 0, len(s.Ports))
	for host, cont := range s.Ports {
		pairs = append(pairs, host+":"+cont)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}
