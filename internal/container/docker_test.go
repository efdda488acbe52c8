package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

type notFoundError struct{}

func (notFoundError) Error() string { return "no such container" }
func (notFoundError) NotFound()     {}

type mockAPI struct {
	created    []string
	started    []string
	stopped    []string
	removed    []string
	stopErr    error
	removeErr  error
	inspect    inspectResult
	inspectErr error
	logStream  []byte
	closed     bool
}

func (m *mockAPI) ContainerCreate(_ context.Context, _ *containertypes.Config, _ *containertypes.HostConfig, name string) (containertypes.CreateResponse, error) {
	m.created = append(m.created, name)
	return containertypes.CreateResponse{ID: "id-" + name}, nil
}

func (m *mockAPI) ContainerStart(_ context.Context, containerID string, _ containertypes.StartOptions) error {
	m.started = append(m.started, containerID)
	return nil
}

func (m *mockAPI) ContainerStop(_ context.Context, containerID string, _ containertypes.StopOptions) error {
	if m.stopErr != nil {
		return m.stopErr
	}
	m.stopped = append(m.stopped, containerID)
	return nil
}

func (m *mockAPI) ContainerRemove(_ context.Context, containerID string, _ containertypes.RemoveOptions) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, containerID)
	return nil
}

func (m *mockAPI) ContainerInspect(_ context.Context, _ string) (inspectResult, error) {
	return m.inspect, m.inspectErr
}

func (m *mockAPI) ContainerLogs(_ context.Context, _ string, _ containertypes.LogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.logStream)), nil
}

func (m *mockAPI) Close() error {
	m.closed = true
	return nil
}

func newTestRuntime(api dockerAPI) *DockerRuntime {
	return &DockerRuntime{api: api, timeout: time.Second}
}

func TestLaunchCreatesAndStarts(t *testing.T) {
	api := &mockAPI{}
	runtime := newTestRuntime(api)

	spec := Spec{
		Image:         "postgres:16",
		Env:           []string{"POSTGRES_PASSWORD=postgres"},
		PublishedPort: 15432,
		TargetPort:    5432,
	}
	if err := runtime.Launch(context.Background(), "simstack-db", spec); err != nil {
		t.Fatalf("Launch error: %v", err)
	}
	if len(api.created) != 1 || api.created[0] != "simstack-db" {
		t.Fatalf("unexpected creates: %v", api.created)
	}
	if len(api.started) != 1 || api.started[0] != "id-simstack-db" {
		t.Fatalf("expected start by created id, got %v", api.started)
	}
}

func TestLaunchRejectsBadTargetPort(t *testing.T) {
	runtime := newTestRuntime(&mockAPI{})
	if err := runtime.Launch(context.Background(), "simstack-db", Spec{Image: "x", TargetPort: -1}); err == nil {
		t.Fatalf("expected invalid port error")
	}
}

func TestTerminateStopsAndRemoves(t *testing.T) {
	api := &mockAPI{}
	runtime := newTestRuntime(api)

	if err := runtime.Terminate(context.Background(), "simstack-db", 10); err != nil {
		t.Fatalf("Terminate error: %v", err)
	}
	if len(api.stopped) != 1 || len(api.removed) != 1 {
		t.Fatalf("expected stop and remove, got %v / %v", api.stopped, api.removed)
	}
}

func TestTerminateMissingContainerIsNotAnError(t *testing.T) {
	api := &mockAPI{stopErr: notFoundError{}}
	runtime := newTestRuntime(api)

	if err := runtime.Terminate(context.Background(), "simstack-db", 10); err != nil {
		t.Fatalf("expected missing container tolerated, got %v", err)
	}
	if len(api.removed) != 0 {
		t.Fatalf("expected no remove after missing stop, got %v", api.removed)
	}
}

func TestTerminateStopFailurePropagates(t *testing.T) {
	api := &mockAPI{stopErr: errors.New("daemon unavailable")}
	runtime := newTestRuntime(api)

	if err := runtime.Terminate(context.Background(), "simstack-db", 10); err == nil {
		t.Fatalf("expected stop error")
	}
}

func TestStatus(t *testing.T) {
	api := &mockAPI{inspect: inspectResult{Running: false, ExitCode: 137}}
	runtime := newTestRuntime(api)

	status, err := runtime.Status(context.Background(), "simstack-db")
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if status.Running || status.ExitCode != 137 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestTailLogsDemuxesStream(t *testing.T) {
	var stream bytes.Buffer
	stdout := stdcopy.NewStdWriter(&stream, stdcopy.Stdout)
	stderr := stdcopy.NewStdWriter(&stream, stdcopy.Stderr)
	stdout.Write([]byte("listening on 5432\n"))
	stderr.Write([]byte("warning: fsync off\n"))

	api := &mockAPI{logStream: stream.Bytes()}
	runtime := newTestRuntime(api)

	lines, err := runtime.TailLogs(context.Background(), "simstack-db", 20)
	if err != nil {
		t.Fatalf("TailLogs error: %v", err)
	}
	if len(lines) != 2 || lines[0] != "listening on 5432" || lines[1] != "warning: fsync off" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestCloseReleasesClient(t *testing.T) {
	api := &mockAPI{}
	runtime := newTestRuntime(api)
	if err := runtime.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if !api.closed {
		t.Fatalf("expected underlying client closed")
	}
}
