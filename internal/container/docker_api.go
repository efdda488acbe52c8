package container

import (
	"context"
	"io"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// dockerClientAdapter narrows the official Docker client to dockerAPI.
type dockerClientAdapter struct {
	client *client.Client
}

var _ dockerAPI = (*dockerClientAdapter)(nil)

func (a *dockerClientAdapter) ContainerCreate(ctx context.Context, config *containertypes.Config, hostConfig *containertypes.HostConfig, containerName string) (containertypes.CreateResponse, error) {
	return a.client.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
}

func (a *dockerClientAdapter) ContainerStart(ctx context.Context, containerID string, options containertypes.StartOptions) error {
	return a.client.ContainerStart(ctx, containerID, options)
}

func (a *dockerClientAdapter) ContainerStop(ctx context.Context, containerID string, options containertypes.StopOptions) error {
	return a.client.ContainerStop(ctx, containerID, options)
}

func (a *dockerClientAdapter) ContainerRemove(ctx context.Context, containerID string, options containertypes.RemoveOptions) error {
	return a.client.ContainerRemove(ctx, containerID, options)
}

func (a *dockerClientAdapter) ContainerInspect(ctx context.Context, containerID string) (inspectResult, error) {
	inspect, err := a.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return inspectResult{}, err
	}
	result := inspectResult{}
	if inspect.State != nil {
		result.Running = inspect.State.Running
		result.ExitCode = inspect.State.ExitCode
	}
	return result, nil
}

func (a *dockerClientAdapter) ContainerLogs(ctx context.Context, containerID string, options containertypes.LogsOptions) (io.ReadCloser, error) {
	return a.client.ContainerLogs(ctx, containerID, options)
}

func (a *dockerClientAdapter) Close() error {
	return a.client.Close()
}
