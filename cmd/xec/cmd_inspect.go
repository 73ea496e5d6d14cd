// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xec-sh/xec/internal/target"
)

// inspectView is the redacted, YAML-rendered shape of a resolved target.
// Credentials never appear: the view names which auth material is
// configured, not its content.
type inspectView struct {
	Name   string            `yaml:"name,omitempty"`
	Kind   string            `yaml:"kind"`
	SSH    *inspectSSH       `yaml:"ssh,omitempty"`
	Docker *inspectDocker    `yaml:"docker,omitempty"`
	K8s    *inspectK8s       `yaml:"k8s,omitempty"`
	Env    map[string]string `yaml:"env,omitempty"`
}

type inspectSSH struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Auth     string `yaml:"auth"`
	Sudo     bool   `yaml:"sudo,omitempty"`
}

type inspectDocker struct {
	Container string `yaml:"container,omitempty"`
	Image     string `yaml:"image,omitempty"`
	Workdir   string `yaml:"workdir,omitempty"`
	User      string `yaml:"user,omitempty"`
	TTY       bool   `yaml:"tty,omitempty"`
}

type inspectK8s struct {
	Pod        string `yaml:"pod"`
	Namespace  string `yaml:"namespace,omitempty"`
	Container  string `yaml:"container,omitempty"`
	Context    string `yaml:"context,omitempty"`
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
}

// newInspectCommand implements `inspect <target>`: print how a token
// resolves (kind, connection parameters, auth method) without executing
// anything against it.
func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <target>",
		Short: "Show how a target token resolves, without connecting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tgt, err := cfg.ResolveTarget(args[0])
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(viewOf(tgt))
			if err != nil {
				return fmt.Errorf("xec: inspect: %w", err)
			}
			os.Stdout.Write(out)
			return nil
		},
	}
}

func viewOf(tgt target.Target) inspectView {
	v := inspectView{Name: tgt.Name, Kind: string(tgt.Kind)}
	switch tgt.Kind {
	case target.SSH:
		v.SSH = sshViewOf(tgt.SSH)
		v.Env = tgt.SSH.Env
	case target.Docker:
		v.Docker = dockerViewOf(tgt.Docker)
		v.Env = tgt.Docker.Env
	case target.K8s:
		v.K8s = &inspectK8s{
			Pod:        tgt.K8s.Name,
			Namespace:  tgt.K8s.Namespace,
			Container:  tgt.K8s.Container,
			Context:    tgt.K8s.Context,
			Kubeconfig: tgt.K8s.Kubeconfig,
		}
	case target.RemoteDocker:
		v.SSH = sshViewOf(tgt.RemoteDocker.SSH)
		v.Docker = dockerViewOf(tgt.RemoteDocker.Docker)
	}
	return v
}

func sshViewOf(spec target.SSHSpec) *inspectSSH {
	return &inspectSSH{
		Host:     spec.Host,
		Port:     spec.Port,
		Username: spec.Username,
		Auth:     authMethodName(spec),
		Sudo:     spec.Sudo != nil && spec.Sudo.Enabled,
	}
}

func dockerViewOf(spec target.DockerSpec) *inspectDocker {
	return &inspectDocker{
		Container: spec.Container,
		Image:     spec.Image,
		Workdir:   spec.Workdir,
		User:      spec.User,
		TTY:       spec.TTY,
	}
}

// authMethodName mirrors the SSH auth precedence: key content, key path,
// agent, password.
func authMethodName(spec target.SSHSpec) string {
	switch {
	case len(spec.PrivateKey) > 0:
		return "private-key"
	case spec.PrivateKeyPath != "":
		return "private-key-path"
	case os.Getenv("SSH_AUTH_SOCK") != "":
		return "ssh-agent"
	case spec.Password != "":
		return "password"
	default:
		return "none"
	}
}
