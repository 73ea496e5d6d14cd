// SPDX-License-Identifier: MPL-2.0

package remotedocker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/target"
)

func TestDockerArgsExecContainer(t *testing.T) {
	a := &Adapter{spec: target.DockerSpec{Container: "web-1", Workdir: "/app"}}
	opts := command.Options{Command: command.Command{Program: "ls", Args: []string{"-la"}}}
	args := a.dockerArgs(opts)
	assert.Equal(t, []string{"exec", "-w", "/app", "web-1", "ls", "-la"}, args)
}

func TestDockerArgsRunImage(t *testing.T) {
	a := &Adapter{spec: target.DockerSpec{Image: "alpine:3.19"}}
	opts := command.Options{Command: command.Command{
		Program: "echo hi",
		Shell:   command.ShellMode{Enabled: true},
	}}
	args := a.dockerArgs(opts)
	assert.Equal(t, []string{"run", "--rm", "alpine:3.19", "/bin/sh", "-c", "echo hi"}, args)
}

func TestRemoteTempPathIsUnderTmp(t *testing.T) {
	p1 := remoteTempPath("notes.txt")
	p2 := remoteTempPath("notes.txt")
	assert.Contains(t, p1, "/tmp/xec-")
	assert.Contains(t, p1, "notes.txt")
	assert.NotEqual(t, p1, p2)
}
