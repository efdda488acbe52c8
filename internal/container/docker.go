package container

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

const defaultAPITimeout = 30 * time.Second

// DockerRuntime implements Runtime using the official Docker Go SDK.
type DockerRuntime struct {
	api     dockerAPI
	timeout time.Duration
}

// dockerAPI is the subset of Docker client operations the runtime uses,
// flattened so tests can substitute a mock for the real daemon. The
// official client is narrowed through dockerClientAdapter.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *containertypes.Config, hostConfig *containertypes.HostConfig, containerName string) (containertypes.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options containertypes.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options containertypes.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options containertypes.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (inspectResult, error)
	ContainerLogs(ctx context.Context, containerID string, options containertypes.LogsOptions) (io.ReadCloser, error)
	Close() error
}

// inspectResult is the slice of inspect output the runtime cares about.
type inspectResult struct {
	Running  bool
	ExitCode int
}

// NewDockerRuntime initializes a runtime against the given Docker host.
// An empty host falls back to the SDK's environment resolution.
func NewDockerRuntime(host string, timeout time.Duration) (*DockerRuntime, error) {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}

	return &DockerRuntime{
		api:     &dockerClientAdapter{client: api},
		timeout: timeout,
	}, nil
}

// Launch implements Runtime.
func (r *DockerRuntime) Launch(ctx context.Context, name string, spec Spec) error {
	if r == nil || r.api == nil {
		return errors.New("docker runtime is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	target, err := nat.NewPort("tcp", strconv.Itoa(spec.TargetPort))
	if err != nil {
		return fmt.Errorf("container %s: invalid target port: %w", name, err)
	}

	config := &containertypes.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Labels: spec.Labels,
		ExposedPorts: nat.PortSet{
			target: struct{}{},
		},
	}
	hostConfig := &containertypes.HostConfig{
		PortBindings: nat.PortMap{
			target: []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: strconv.Itoa(spec.PublishedPort)},
			},
		},
	}

	created, err := r.api.ContainerCreate(ctx, config, hostConfig, name)
	if err != nil {
		return fmt.Errorf("create container %s: %w", name, err)
	}
	if err := r.api.ContainerStart(ctx, created.ID, containertypes.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	return nil
}

// Terminate implements Runtime.
func (r *DockerRuntime) Terminate(ctx context.Context, name string, graceSeconds int) error {
	if r == nil || r.api == nil {
		return errors.New("docker runtime is not initialized")
	}

	stopErr := r.api.ContainerStop(ctx, name, containertypes.StopOptions{Timeout: &graceSeconds})
	if stopErr != nil && client.IsErrNotFound(stopErr) {
		return nil
	}

	removeErr := r.api.ContainerRemove(ctx, name, containertypes.RemoveOptions{Force: true})
	if removeErr != nil && client.IsErrNotFound(removeErr) {
		removeErr = nil
	}

	if stopErr != nil {
		return fmt.Errorf("stop container %s: %w", name, stopErr)
	}
	if removeErr != nil {
		return fmt.Errorf("remove container %s: %w", name, removeErr)
	}
	return nil
}

// Status implements Runtime.
func (r *DockerRuntime) Status(ctx context.Context, name string) (Status, error) {
	if r == nil || r.api == nil {
		return Status{}, errors.New("docker runtime is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	inspect, err := r.api.ContainerInspect(ctx, name)
	if err != nil {
		return Status{}, fmt.Errorf("inspect container %s: %w", name, err)
	}
	return Status{Running: inspect.Running, ExitCode: inspect.ExitCode}, nil
}

// TailLogs implements Runtime.
func (r *DockerRuntime) TailLogs(ctx context.Context, name string, tail int) ([]string, error) {
	if r == nil || r.api == nil {
		return nil, errors.New("docker runtime is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tailValue := "all"
	if tail > 0 {
		tailValue = strconv.Itoa(tail)
	}

	reader, err := r.api.ContainerLogs(ctx, name, containertypes.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tailValue,
	})
	if err != nil {
		return nil, fmt.Errorf("logs for container %s: %w", name, err)
	}
	defer reader.Close()

	// Docker multiplexes stdout/stderr on one stream; demux before splitting.
	var combined bytes.Buffer
	if _, err := stdcopy.StdCopy(&combined, &combined, reader); err != nil {
		return nil, fmt.Errorf("read logs for container %s: %w", name, err)
	}

	var lines []string
	scanner := bufio.NewScanner(&combined)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan logs for container %s: %w", name, err)
	}
	return lines, nil
}

// Close implements Runtime.
func (r *DockerRuntime) Close() error {
	if r == nil || r.api == nil {
		return nil
	}
	return r.api.Close()
}
