// Package docker starts throwaway containers for integration tests.
package docker

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Container describes one service container. Ready is polled until it
// returns nil or ReadyTimeout passes.
type Container struct {
	Name         string
	Image        string
	HostPort     string
	ServicePort  string
	Env          map[string]string
	Ready        func(ctx context.Context) error
	ReadyTimeout time.Duration

	once sync.Once
	err  error
}

// Setup runs the container once per process; later calls return the first
// result.
func (c *Container) Setup() error {
	c.once.Do(func() {
		if _, err := exec.LookPath("docker"); err != nil {
			c.err = fmt.Errorf("docker executable not found: %w", err)
			return
		}
		_ = c.stop()
		args := []string{"run", "-d", "--rm", "--name", c.Name, "-p", c.HostPort + ":" + c.ServicePort}
		for k, v := range c.Env {
			args = append(args, "-e", k+"="+v)
		}
		if err := run(append(args, c.Image)...); err != nil {
			c.err = err
			return
		}
		c.err = c.waitReady()
	})
	return c.err
}

// Teardown stops a container started by Setup.
func (c *Container) Teardown() error {
	if c.err != nil {
		return c.err
	}
	return c.stop()
}

func (c *Container) waitReady() error {
	if c.Ready == nil {
		return nil
	}
	timeout := c.ReadyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	var last error
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		last = c.Ready(ctx)
		cancel()
		if last == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("%s container not ready after %s: %w", c.Name, timeout, last)
}

func (c *Container) stop() error {
	output, err := exec.Command("docker", "stop", c.Name).CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "No such container") {
			return nil
		}
		return fmt.Errorf("docker stop %s: %w: %s", c.Name, err, output)
	}
	return nil
}

func run(args ...string) error {
	output, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s: %w: %s", args[0], err, output)
	}
	return nil
}
