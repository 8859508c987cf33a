package workspace

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ContainerRunner backs the "docker" node execution provider
// (EXECUTION_PROVIDER_DOCKER in original_source's execution contracts):
// a node's workspace directory is bind-mounted into a disposable
// container instead of being read directly on the host. Grounded on
// internal/dispatch/docker.go's DockerDispatcher, generalized from a
// long-lived agent session (tmux-style handle/Kill/IsAlive lifecycle)
// to a single run-to-completion container per NodeRun, since a node
// execution has no notion of an interactively attached session.
type ContainerRunner struct {
	cli   *client.Client
	image string
}

// NewContainerRunner connects to the local Docker daemon using the
// standard environment (DOCKER_HOST, etc). image is the container image
// every node execution runs in; it must have the node's command
// available on PATH.
func NewContainerRunner(image string) (*ContainerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("workspace: init docker client: %w", err)
	}
	return &ContainerRunner{cli: cli, image: image}, nil
}

// Run executes cmd inside a fresh container with workdir bind-mounted at
// /workspace, waits for it to exit, and returns its combined stdout and
// exit code. The container is always removed before Run returns.
func (r *ContainerRunner) Run(ctx context.Context, workdir string, cmd []string, env map[string]string) (stdout string, exitCode int, err error) {
	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	resp, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      r.image,
			Cmd:        cmd,
			WorkingDir: "/workspace",
			Env:        envList,
			Tty:        false,
		},
		&container.HostConfig{
			Mounts:     []mount.Mount{{Type: mount.TypeBind, Source: workdir, Target: "/workspace"}},
			AutoRemove: false,
		},
		nil, nil, "",
	)
	if err != nil {
		return "", -1, fmt.Errorf("workspace: create container: %w", err)
	}
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.cli.ContainerRemove(removeCtx, resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	}()

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", -1, fmt.Errorf("workspace: start container: %w", err)
	}

	statusCh, errCh := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", -1, fmt.Errorf("workspace: wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	logs, err := r.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", exitCode, fmt.Errorf("workspace: read container logs: %w", err)
	}
	defer logs.Close()

	var out, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &errBuf, logs); err != nil {
		return "", exitCode, fmt.Errorf("workspace: demux container logs: %w", err)
	}
	combined := out.String()
	if errBuf.Len() > 0 {
		combined += "\n" + errBuf.String()
	}
	return combined, exitCode, nil
}
