// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

// Driver defaults.
const (
	DefaultImage       = "python:3.11-slim"
	DefaultMemoryLimit = 512 * 1024 * 1024
	DefaultCPULimit    = 1.0

	readyTimeout = 10 * time.Second
)

// ContainerDriver is what the session store needs from the driver. Satisfied
// by *Driver; tests substitute fakes.
type ContainerDriver interface {
	StartContainer(ctx context.Context, name string, runner []byte) (string, *Stream, error)
	StopContainer(ctx context.Context, dockerID string) error
	Ping(ctx context.Context) error
}

// DriverConfig configures the container driver.
type DriverConfig struct {
	// DockerHost is the Docker daemon endpoint. Empty uses the environment
	// (DOCKER_HOST or the default socket).
	DockerHost string

	Image           string
	MemoryLimit     int64   // bytes
	CPULimit        float64 // CPUs
	NetworkDisabled bool

	Logger *zap.Logger
}

// Driver creates and destroys sandbox containers and wires up their duplex
// streams.
type Driver struct {
	cli    *client.Client
	cfg    DriverConfig
	logger *zap.Logger
}

// NewDriver builds a Driver and verifies the Docker daemon is reachable.
func NewDriver(ctx context.Context, cfg DriverConfig) (*Driver, error) {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.MemoryLimit == 0 {
		cfg.MemoryLimit = DefaultMemoryLimit
	}
	if cfg.CPULimit == 0 {
		cfg.CPULimit = DefaultCPULimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.DockerHost != "" {
		opts = append(opts, client.WithHost(cfg.DockerHost))
	} else if os.Getenv("DOCKER_HOST") != "" {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to ping Docker daemon: %w", err)
	}
	logger.Info("docker daemon is reachable", zap.String("image", cfg.Image))

	return &Driver{cli: cli, cfg: cfg, logger: logger}, nil
}

// Ping checks daemon availability.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (d *Driver) Close() error {
	return d.cli.Close()
}

// StartContainer creates a sandbox container, injects the runner script,
// attaches the duplex stream, starts the container, and waits for the
// runner's ready line. The stream is attached before start so no output is
// lost. Returns the Docker container id and the live stream.
func (d *Driver) StartContainer(ctx context.Context, name string, runner []byte) (string, *Stream, error) {
	if err := d.ensureImage(ctx); err != nil {
		return "", nil, err
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:           d.cfg.Image,
			Cmd:             []string{"python", "-u", "/tmp/runner.py"},
			WorkingDir:      "/workspace",
			OpenStdin:       true,
			AttachStdin:     true,
			AttachStdout:    true,
			AttachStderr:    true,
			NetworkDisabled: d.cfg.NetworkDisabled,
		},
		&container.HostConfig{
			Resources: container.Resources{
				Memory:   d.cfg.MemoryLimit,
				NanoCPUs: int64(d.cfg.CPULimit * 1e9),
			},
			SecurityOpt: []string{"no-new-privileges"},
			CapDrop:     []string{"ALL"},
		},
		nil, nil, name,
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create container: %w", err)
	}
	dockerID := resp.ID

	fail := func(err error) (string, *Stream, error) {
		_ = d.StopContainer(context.Background(), dockerID)
		return "", nil, err
	}

	// The runner travels as a one-entry tar archive. Bind mounts are off the
	// table: they break inside Docker-in-Docker setups.
	archive, err := runnerArchive(runner)
	if err != nil {
		return fail(err)
	}
	if err := d.cli.CopyToContainer(ctx, dockerID, "/tmp", archive, types.CopyToContainerOptions{}); err != nil {
		return fail(fmt.Errorf("failed to copy runner into container: %w", err))
	}

	// Attach before start so the ready line cannot be missed.
	hijack, err := d.cli.ContainerAttach(ctx, dockerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to attach to container: %w", err))
	}
	stream := NewStream(hijack.Reader, hijack.Conn, hijack.Conn)

	if err := d.cli.ContainerStart(ctx, dockerID, container.StartOptions{}); err != nil {
		stream.Close()
		return fail(fmt.Errorf("failed to start container: %w", err))
	}

	if err := d.awaitReady(ctx, stream); err != nil {
		stream.Close()
		return fail(err)
	}

	d.logger.Info("sandbox container started",
		zap.String("container_name", name),
		zap.String("docker_id", dockerID[:12]))
	return dockerID, stream, nil
}

// StopContainer stops and removes a container. Best-effort; removal is
// forced.
func (d *Driver) StopContainer(ctx context.Context, dockerID string) error {
	timeout := 2
	if err := d.cli.ContainerStop(ctx, dockerID, container.StopOptions{Timeout: &timeout}); err != nil {
		d.logger.Debug("container stop failed", zap.String("docker_id", dockerID), zap.Error(err))
	}
	if err := d.cli.ContainerRemove(ctx, dockerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// IsRunning reports whether the container is still in the running state.
func (d *Driver) IsRunning(ctx context.Context, dockerID string) bool {
	info, err := d.cli.ContainerInspect(ctx, dockerID)
	if err != nil {
		return false
	}
	return info.State != nil && info.State.Running
}

func (d *Driver) ensureImage(ctx context.Context) error {
	if _, _, err := d.cli.ImageInspectWithRaw(ctx, d.cfg.Image); err == nil {
		return nil
	}
	d.logger.Info("pulling sandbox image", zap.String("image", d.cfg.Image))
	rc, err := d.cli.ImagePull(ctx, d.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", d.cfg.Image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", d.cfg.Image, err)
	}
	return nil
}

// awaitReady drains stderr until the runner announces readiness.
func (d *Driver) awaitReady(ctx context.Context, stream *Stream) error {
	deadline := time.Now().Add(readyTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("runner did not become ready within %s", readyTimeout)
		}
		line, err := stream.ReadLine(ctx, stream.Stderr(), remaining)
		if err != nil {
			return fmt.Errorf("waiting for runner ready: %w", err)
		}
		if line == MarkerReady {
			return nil
		}
	}
}

func runnerArchive(runner []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name: "runner.py",
		Mode: 0o755,
		Size: int64(len(runner)),
	}); err != nil {
		return nil, fmt.Errorf("building runner archive: %w", err)
	}
	if _, err := tw.Write(runner); err != nil {
		return nil, fmt.Errorf("building runner archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("building runner archive: %w", err)
	}
	return &buf, nil
}
