// SPDX-License-Identifier: MPL-2.0

// Package config implements the declarative configuration tree: the
// {defaults, hosts, containers, pods, profiles, tasks, aliases} schema,
// its layered-merge loader, and the target resolver that turns a CLI
// token into an internal/target.Target.
package config

import "github.com/xec-sh/xec/pkg/types"

// SudoConfig is the `hosts.<name>.sudo` schema.
type SudoConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Password string `yaml:"password" mapstructure:"password"`
}

// HostConfig is the `hosts.<name>` schema.
type HostConfig struct {
	Host              string            `yaml:"host" mapstructure:"host"`
	Port              int               `yaml:"port" mapstructure:"port"`
	Username          string            `yaml:"username" mapstructure:"username"`
	Password          string            `yaml:"password" mapstructure:"password"`
	PrivateKey        string            `yaml:"privateKey" mapstructure:"privateKey"`
	PrivateKeyPath    string            `yaml:"privateKeyPath" mapstructure:"privateKeyPath"`
	Passphrase        string            `yaml:"passphrase" mapstructure:"passphrase"`
	ReadyTimeout      types.Duration    `yaml:"readyTimeout" mapstructure:"readyTimeout"`
	KeepaliveInterval types.Duration    `yaml:"keepaliveInterval" mapstructure:"keepaliveInterval"`
	KeepaliveCountMax int               `yaml:"keepaliveCountMax" mapstructure:"keepaliveCountMax"`
	Env               map[string]string `yaml:"env" mapstructure:"env"`
	Sudo              *SudoConfig       `yaml:"sudo" mapstructure:"sudo"`
}

// ContainerConfig is the `containers.<name>` schema. Name is accepted as
// an alias for Container. Host, when set, names an entry in `hosts` and
// turns the container into a remote-docker target: docker operations run
// on that host's daemon over SSH instead of the local one.
type ContainerConfig struct {
	Container string            `yaml:"container" mapstructure:"container"`
	Name      string            `yaml:"name" mapstructure:"name"`
	Image     string            `yaml:"image" mapstructure:"image"`
	Host      string            `yaml:"host" mapstructure:"host"`
	Env       map[string]string `yaml:"env" mapstructure:"env"`
	Workdir   string            `yaml:"workdir" mapstructure:"workdir"`
	User      string            `yaml:"user" mapstructure:"user"`
	TTY       bool              `yaml:"tty" mapstructure:"tty"`
}

// ResolvedContainer returns Container, falling back to Name.
func (c ContainerConfig) ResolvedContainer() string {
	if c.Container != "" {
		return c.Container
	}
	return c.Name
}

// PodConfig is the `pods.<name>` schema.
type PodConfig struct {
	Name       string `yaml:"name" mapstructure:"name"`
	Namespace  string `yaml:"namespace" mapstructure:"namespace"`
	Container  string `yaml:"container" mapstructure:"container"`
	Context    string `yaml:"context" mapstructure:"context"`
	Kubeconfig string `yaml:"kubeconfig" mapstructure:"kubeconfig"`
}

// Defaults is the `defaults` schema.
type Defaults struct {
	Timeout            types.Duration    `yaml:"timeout" mapstructure:"timeout"`
	Shell              string            `yaml:"shell" mapstructure:"shell"`
	Cwd                string            `yaml:"cwd" mapstructure:"cwd"`
	Env                map[string]string `yaml:"env" mapstructure:"env"`
	Encoding           string            `yaml:"encoding" mapstructure:"encoding"`
	ThrowOnNonZeroExit *bool             `yaml:"throwOnNonZeroExit" mapstructure:"throwOnNonZeroExit"`
}

// ParamSpec describes one typed task parameter.
type ParamSpec struct {
	Type     string `yaml:"type" mapstructure:"type"`
	Default  string `yaml:"default" mapstructure:"default"`
	Required bool   `yaml:"required" mapstructure:"required"`
}

// TaskStep is one step of a task: exactly one of Command, Script, Task
// should be set.
type TaskStep struct {
	Target  string            `yaml:"target" mapstructure:"target"`
	Command string            `yaml:"command" mapstructure:"command"`
	Script  string            `yaml:"script" mapstructure:"script"`
	Task    string            `yaml:"task" mapstructure:"task"`
	Params  map[string]string `yaml:"params" mapstructure:"params"`
}

// Task is the `tasks.<name>` schema.
type Task struct {
	Description     types.DescriptionText `yaml:"description" mapstructure:"description"`
	Params          map[string]ParamSpec  `yaml:"params" mapstructure:"params"`
	Target          string                `yaml:"target" mapstructure:"target"`
	Targets         []string              `yaml:"targets" mapstructure:"targets"`
	Steps           []TaskStep            `yaml:"steps" mapstructure:"steps"`
	Parallel        bool                  `yaml:"parallel" mapstructure:"parallel"`
	MaxConcurrency  int                   `yaml:"maxConcurrency" mapstructure:"maxConcurrency"`
	ContinueOnError bool                  `yaml:"continueOnError" mapstructure:"continueOnError"`
}

// Profile is the `profiles.<name>` schema: an override layer that may
// extend another profile, forming a DAG that must be acyclic.
type Profile struct {
	Extends    string                     `yaml:"extends" mapstructure:"extends"`
	Defaults   *Defaults                  `yaml:"defaults" mapstructure:"defaults"`
	Hosts      map[string]HostConfig      `yaml:"hosts" mapstructure:"hosts"`
	Containers map[string]ContainerConfig `yaml:"containers" mapstructure:"containers"`
	Pods       map[string]PodConfig       `yaml:"pods" mapstructure:"pods"`
}

// Config is the top-level configuration tree.
type Config struct {
	Defaults   Defaults                   `yaml:"defaults" mapstructure:"defaults"`
	Hosts      map[string]HostConfig      `yaml:"hosts" mapstructure:"hosts"`
	Containers map[string]ContainerConfig `yaml:"containers" mapstructure:"containers"`
	Pods       map[string]PodConfig       `yaml:"pods" mapstructure:"pods"`
	Profiles   map[string]Profile         `yaml:"profiles" mapstructure:"profiles"`
	Tasks      map[string]Task            `yaml:"tasks" mapstructure:"tasks"`
	Aliases    map[string]string          `yaml:"aliases" mapstructure:"aliases"`

	// SourcePath records which file (if any) this Config was loaded from,
	// for reload-on-SIGHUP and `config show` diagnostics.
	SourcePath string `yaml:"-" mapstructure:"-"`
}

// builtinDefaults is the first, lowest-precedence merge layer.
func builtinDefaults() *Config {
	return &Config{
		Defaults: Defaults{
			Timeout:  types.Duration(0),
			Shell:    "",
			Encoding: "utf-8",
		},
		Hosts:      map[string]HostConfig{},
		Containers: map[string]ContainerConfig{},
		Pods:       map[string]PodConfig{},
		Profiles:   map[string]Profile{},
		Tasks:      map[string]Task{},
		Aliases:    map[string]string{},
	}
}
