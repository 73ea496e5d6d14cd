// SPDX-License-Identifier: MPL-2.0

// Package target models the tagged execution-destination variant: Local,
// SSH, Docker, K8s, or RemoteDocker, each carrying its own connection
// parameters. The type is plain data; all substrate behavior lives in the
// corresponding internal/adapter package.
package target

import "fmt"

// Kind discriminates the Target variant.
type Kind string

const (
	// Local is the host the engine itself runs on.
	Local Kind = "local"
	// SSH is a remote host reached over a pooled SSH session.
	SSH Kind = "ssh"
	// Docker is a container (or ephemeral image) on a reachable daemon.
	Docker Kind = "docker"
	// K8s is a pod reached through the system kubectl.
	K8s Kind = "k8s"
	// RemoteDocker is a container on a Docker daemon behind an SSH host.
	RemoteDocker Kind = "remote-docker"
)

// SudoSpec configures privilege escalation for SSH command execution. The
// password, when set, is written to the remote channel's stdin and never
// logged.
type SudoSpec struct {
	Enabled  bool
	Password string
}

// SSHSpec carries the connection parameters of one SSH destination.
// ReadyTimeout and KeepaliveInterval are in seconds. A zero ReadyTimeout
// means the pool's 10-second default; a zero KeepaliveInterval means no
// keepalive requests are sent.
type SSHSpec struct {
	Host              string
	Port              int
	Username          string
	Password          string
	PrivateKey        []byte
	PrivateKeyPath    string
	Passphrase        string
	ReadyTimeout      int
	KeepaliveInterval int
	KeepaliveCountMax int
	Env               map[string]string
	Sudo              *SudoSpec
}

// DockerSpec identifies either an existing container (Container set) or an
// image to run ephemerally (Image set). Host overrides the environment's
// DOCKER_HOST when non-empty.
type DockerSpec struct {
	Container  string
	Image      string
	Host       string
	Env        map[string]string
	Workdir    string
	User       string
	TTY        bool
	AutoRemove bool
}

// K8sSpec identifies one pod, optionally narrowed to a container, plus the
// kubectl context/kubeconfig it is reached through.
type K8sSpec struct {
	Name       string
	Namespace  string
	Container  string
	Context    string
	Kubeconfig string
}

// RemoteDockerSpec composes an SSH host with a Docker identity on that
// host.
type RemoteDockerSpec struct {
	SSH    SSHSpec
	Docker DockerSpec
}

// Target is a resolved execution destination. Exactly the spec field
// matching Kind is meaningful; the others are zero values.
type Target struct {
	Kind Kind
	// Name is the configuration name the target was resolved from, kept for
	// diagnostics; empty for the implicit local target.
	Name string

	SSH          SSHSpec
	Docker       DockerSpec
	K8s          K8sSpec
	RemoteDocker RemoteDockerSpec
}

// NewLocal returns the local-host target.
func NewLocal() Target {
	return Target{Kind: Local}
}

// NewSSH returns an SSH target named name.
func NewSSH(name string, spec SSHSpec) Target {
	return Target{Kind: SSH, Name: name, SSH: spec}
}

// NewDocker returns a Docker target named name.
func NewDocker(name string, spec DockerSpec) Target {
	return Target{Kind: Docker, Name: name, Docker: spec}
}

// NewK8s returns a Kubernetes pod target named name.
func NewK8s(name string, spec K8sSpec) Target {
	return Target{Kind: K8s, Name: name, K8s: spec}
}

// NewRemoteDocker returns a remote-Docker target named name: dockerSpec
// interpreted against the daemon on sshSpec's host.
func NewRemoteDocker(name string, sshSpec SSHSpec, dockerSpec DockerSpec) Target {
	return Target{Kind: RemoteDocker, Name: name, RemoteDocker: RemoteDockerSpec{SSH: sshSpec, Docker: dockerSpec}}
}

// String renders the target for diagnostics: the kind alone for local, or
// kind:name (falling back to the substrate identity when the target was
// built without a configuration name).
func (t Target) String() string {
	if t.Kind == Local || t.Kind == "" {
		return string(Local)
	}
	name := t.Name
	if name == "" {
		switch t.Kind {
		case SSH:
			name = t.SSH.Host
		case Docker:
			name = t.Docker.Container
			if name == "" {
				name = t.Docker.Image
			}
		case K8s:
			name = t.K8s.Name
		case RemoteDocker:
			name = t.RemoteDocker.SSH.Host
		}
	}
	if name == "" {
		return string(t.Kind)
	}
	return fmt.Sprintf("%s:%s", t.Kind, name)
}
