// SPDX-License-Identifier: MPL-2.0

package config

import (
	"strings"

	"github.com/xec-sh/xec/internal/strdist"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/xerr"
)

// maxSuggestDistance bounds how far off a typo can be before ResolveTarget
// stops proposing it as a TargetNotFound suggestion.
const maxSuggestDistance = 3

// ResolveTarget turns a user-supplied token into an internal/target.Target:
// it matches in order against aliases, then hosts, containers, pods;
// on ambiguity hosts win. A `pod:<name>` token forces pods; `docker:<name>`
// forces containers. An unrecognized token raises TargetNotFound carrying
// the closest-by-edit-distance suggestion from every known name.
func (c *Config) ResolveTarget(token string) (target.Target, error) {
	if token == "" || token == "local" {
		return target.NewLocal(), nil
	}

	if name, ok := strings.CutPrefix(token, "pod:"); ok {
		return c.resolvePod(name)
	}
	if name, ok := strings.CutPrefix(token, "docker:"); ok {
		return c.resolveContainer(name)
	}
	if name, ok := strings.CutPrefix(token, "ssh:"); ok {
		return c.resolveHost(name)
	}

	if aliased, ok := c.Aliases[token]; ok {
		return c.ResolveTarget(aliased)
	}
	if _, ok := c.Hosts[token]; ok {
		return c.resolveHost(token)
	}
	if _, ok := c.Containers[token]; ok {
		return c.resolveContainer(token)
	}
	if _, ok := c.Pods[token]; ok {
		return c.resolvePod(token)
	}

	return target.Target{}, c.notFound(token)
}

func (c *Config) resolveHost(name string) (target.Target, error) {
	h, ok := c.Hosts[name]
	if !ok {
		return target.Target{}, c.notFound(name)
	}
	spec := target.SSHSpec{
		Host:              h.Host,
		Port:              h.Port,
		Username:          h.Username,
		Password:          h.Password,
		PrivateKeyPath:    h.PrivateKeyPath,
		Passphrase:        h.Passphrase,
		ReadyTimeout:      int(h.ReadyTimeout.AsStd().Seconds()),
		KeepaliveInterval: int(h.KeepaliveInterval.AsStd().Seconds()),
		KeepaliveCountMax: h.KeepaliveCountMax,
		Env:               h.Env,
	}
	if h.PrivateKey != "" {
		spec.PrivateKey = []byte(h.PrivateKey)
	}
	if h.Sudo != nil {
		spec.Sudo = &target.SudoSpec{Enabled: h.Sudo.Enabled, Password: h.Sudo.Password}
	}
	return target.NewSSH(name, spec), nil
}

func (c *Config) resolveContainer(name string) (target.Target, error) {
	ct, ok := c.Containers[name]
	if !ok {
		return target.Target{}, c.notFound(name)
	}
	spec := target.DockerSpec{
		Container: ct.ResolvedContainer(),
		Image:     ct.Image,
		Env:       ct.Env,
		Workdir:   ct.Workdir,
		User:      ct.User,
		TTY:       ct.TTY,
	}

	// A container pinned to a host is a remote-docker target: the
	// docker invocations run on that host's daemon through the SSH pool.
	if ct.Host != "" {
		hostTgt, err := c.resolveHost(ct.Host)
		if err != nil {
			return target.Target{}, err
		}
		return target.NewRemoteDocker(name, hostTgt.SSH, spec), nil
	}
	return target.NewDocker(name, spec), nil
}

func (c *Config) resolvePod(name string) (target.Target, error) {
	p, ok := c.Pods[name]
	if !ok {
		return target.Target{}, c.notFound(name)
	}
	spec := target.K8sSpec{
		Name:       p.Name,
		Namespace:  p.Namespace,
		Container:  p.Container,
		Context:    p.Context,
		Kubeconfig: p.Kubeconfig,
	}
	if spec.Name == "" {
		spec.Name = name
	}
	return target.NewK8s(name, spec), nil
}

// notFound builds a TargetNotFound error suggesting the closest known name
// across aliases, hosts, containers, and pods.
func (c *Config) notFound(token string) error {
	candidates := make([]string, 0, len(c.Aliases)+len(c.Hosts)+len(c.Containers)+len(c.Pods))
	for k := range c.Aliases {
		candidates = append(candidates, k)
	}
	for k := range c.Hosts {
		candidates = append(candidates, k)
	}
	for k := range c.Containers {
		candidates = append(candidates, k)
	}
	for k := range c.Pods {
		candidates = append(candidates, k)
	}

	msg := "target %q not found"
	if best, ok := strdist.Closest(token, candidates, maxSuggestDistance); ok {
		return xerr.Newf(xerr.TargetNotFound, "config", msg+", did you mean %q?", token, best)
	}
	return xerr.Newf(xerr.TargetNotFound, "config", msg, token)
}
