package testrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"dappforge/internal/metrics"
)

const (
	containerWorkDir = "/workspace"
	maxOutputBytes   = 2 * 1024 * 1024
)

// execOutput is the raw outcome of one sandboxed process run.
type execOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// sandbox executes the test command inside a prepared project directory.
type sandbox interface {
	Exec(ctx context.Context, projectDir string, timeout time.Duration) (execOutput, error)
}

// DockerSandbox runs the Hardhat test process in a locked-down
// container: project dir bind-mounted, no network, capabilities
// dropped, memory and pid quotas, SIGKILL on deadline.
type DockerSandbox struct {
	cli      *client.Client
	image    string
	memoryMB int64

	active int64
}

// NewDockerSandbox creates a Docker-backed sandbox. dockerHost may be
// empty to use the environment default.
func NewDockerSandbox(dockerHost, imageName string, memoryMB int64) (*DockerSandbox, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker sdk client init failed: %w", err)
	}
	if memoryMB <= 0 {
		memoryMB = 1024
	}
	return &DockerSandbox{cli: cli, image: imageName, memoryMB: memoryMB}, nil
}

// Ping verifies the Docker daemon is reachable.
func (s *DockerSandbox) Ping(ctx context.Context) error {
	_, err := s.cli.Ping(ctx)
	return err
}

// Exec runs `npx hardhat test` over the mounted project directory.
func (s *DockerSandbox) Exec(ctx context.Context, projectDir string, timeout time.Duration) (execOutput, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.ensureImage(execCtx); err != nil {
		return execOutput{}, err
	}

	atomic.AddInt64(&s.active, 1)
	metrics.Get().SandboxExecsActive.Inc()
	defer func() {
		atomic.AddInt64(&s.active, -1)
		metrics.Get().SandboxExecsActive.Dec()
	}()

	pidsLimit := int64(256)
	created, err := s.cli.ContainerCreate(execCtx, &container.Config{
		Image:           s.image,
		WorkingDir:      containerWorkDir,
		Cmd:             []string{"npx", "hardhat", "test"},
		AttachStdout:    true,
		AttachStderr:    true,
		Tty:             false,
		NetworkDisabled: true,
	}, &container.HostConfig{
		AutoRemove:  false,
		SecurityOpt: []string{"no-new-privileges:true"},
		CapDrop:     []string{"ALL"},
		NetworkMode: "none",
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: projectDir,
			Target: containerWorkDir,
		}},
		Tmpfs: map[string]string{"/tmp": "rw,noexec,nosuid,size=128m"},
		Resources: container.Resources{
			Memory:     s.memoryMB * 1024 * 1024,
			MemorySwap: s.memoryMB * 1024 * 1024,
			PidsLimit:  &pidsLimit,
		},
	}, &network.NetworkingConfig{}, nil, "dappforge-test-"+uuid.New().String()[:12])
	if err != nil {
		return execOutput{}, fmt.Errorf("docker container create failed: %w", err)
	}

	containerID := created.ID
	defer func() {
		_ = s.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	if err := s.cli.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return execOutput{}, fmt.Errorf("docker container start failed: %w", err)
	}

	out := execOutput{}
	waitCh, errCh := s.cli.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	select {
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			out.TimedOut = true
			out.ExitCode = 124
		} else {
			out.ExitCode = 137
		}
		_ = s.cli.ContainerKill(context.Background(), containerID, "SIGKILL")
	case resp := <-waitCh:
		out.ExitCode = int(resp.StatusCode)
	case err := <-errCh:
		return execOutput{}, fmt.Errorf("docker container wait failed: %w", err)
	}

	stdout, stderr, logErr := s.readLogs(context.Background(), containerID)
	if logErr != nil && stdout == "" && stderr == "" {
		return out, fmt.Errorf("failed to read container logs: %w", logErr)
	}
	out.Stdout = stdout
	out.Stderr = stderr
	return out, nil
}

func (s *DockerSandbox) ensureImage(ctx context.Context) error {
	_, _, err := s.cli.ImageInspectWithRaw(ctx, s.image)
	if err == nil {
		return nil
	}
	rc, pullErr := s.cli.ImagePull(ctx, s.image, image.PullOptions{})
	if pullErr != nil {
		return fmt.Errorf("pull image %s: %w", s.image, pullErr)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

func (s *DockerSandbox) readLogs(ctx context.Context, containerID string) (string, string, error) {
	rc, err := s.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	_, err = stdcopy.StdCopy(
		&limitedWriter{w: &stdout, limit: maxOutputBytes},
		&limitedWriter{w: &stderr, limit: maxOutputBytes},
		rc,
	)
	return stdout.String(), stderr.String(), err
}

// ActiveCount reports in-flight executions.
func (s *DockerSandbox) ActiveCount() int {
	return int(atomic.LoadInt64(&s.active))
}

// Close releases the Docker client.
func (s *DockerSandbox) Close() error {
	return s.cli.Close()
}

// limitedWriter truncates output beyond the limit instead of failing.
type limitedWriter struct {
	w     io.Writer
	limit int64
	n     int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.n >= lw.limit {
		return len(p), nil
	}
	remaining := lw.limit - lw.n
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.n += int64(written)
	if err != nil {
		return written, err
	}
	return len(p), nil
}
