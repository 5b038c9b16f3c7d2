package workers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	rssh "github.com/viant/gosh/runner/ssh"
	"github.com/viant/scy/cred/secret"
	"golang.org/x/crypto/ssh"
)

// CommandExecutor executes test task commands through a shell session, on
// the local host or over SSH when the pool is configured with a remote
// host. The session is created lazily on first use and reused afterwards.
type CommandExecutor struct {
	host        string
	credentials string

	mu      sync.Mutex
	service *gosh.Service
}

var _ Executor = (*CommandExecutor)(nil)

// NewCommandExecutor returns an executor bound to the pool configuration.
func NewCommandExecutor(config Config) *CommandExecutor {
	return &CommandExecutor{
		host:        config.Host,
		credentials: config.Credentials,
	}
}

// Execute runs the task command and captures its output. A task without a
// command settles immediately with exit code zero; the sub-runner decides
// what that means.
func (e *CommandExecutor) Execute(ctx context.Context, task *Task) (*Result, error) {
	result := &Result{TaskID: task.ID}
	if task.Command == "" {
		return result, nil
	}
	service, err := e.getService(ctx, task.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to get shell session: %w", err)
	}
	stdout, status, err := service.Run(ctx, task.Command, runner.WithTimeout(int(task.Timeout.Milliseconds())))
	result.ExitCode = status
	if status == 0 {
		result.Stdout = stdout
		return result, err
	}
	if stdout == "" && err != nil {
		stdout = err.Error()
	}
	result.Stderr = stdout
	return result, nil
}

// Close releases the shell session, if any.
func (e *CommandExecutor) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.service == nil {
		return nil
	}
	err := e.service.Close()
	e.service = nil
	return err
}

func (e *CommandExecutor) getService(ctx context.Context, env map[string]string) (*gosh.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.service != nil {
		return e.service, nil
	}
	options := []runner.Option{}
	if len(env) > 0 {
		options = append(options, runner.WithEnvironment(env))
	}
	var service *gosh.Service
	var err error
	if e.host == "" || e.host == "localhost" {
		service, err = gosh.New(ctx, local.New(options...))
	} else {
		config, configErr := e.sshConfig(ctx)
		if configErr != nil {
			return nil, fmt.Errorf("failed to get SSH config: %w", configErr)
		}
		host := e.host
		if !strings.Contains(host, ":") {
			host += ":22"
		}
		service, err = gosh.New(ctx, rssh.New(host, config, options...))
	}
	if err != nil {
		return nil, err
	}
	e.service = service
	return service, nil
}

// sshConfig resolves SSH credentials for the remote host via scy.
func (e *CommandExecutor) sshConfig(ctx context.Context) (*ssh.ClientConfig, error) {
	credentials := e.credentials
	if credentials == "" {
		credentials = "localhost"
	}
	secrets := secret.New()
	generic, err := secrets.GetCredentials(ctx, credentials)
	if err != nil {
		return nil, err
	}
	return generic.SSH.Config(ctx)
}
