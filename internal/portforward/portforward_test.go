// SPDX-License-Identifier: MPL-2.0

package portforward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpointBarePort(t *testing.T) {
	ep, err := ParseEndpoint("8080")
	require.NoError(t, err)
	assert.Equal(t, Bare, ep.Kind)
	assert.Equal(t, 8080, ep.Port)
}

func TestParseEndpointHostPort(t *testing.T) {
	ep, err := ParseEndpoint("web:5432")
	require.NoError(t, err)
	assert.Equal(t, Host, ep.Kind)
	assert.Equal(t, "web", ep.Host)
	assert.Equal(t, 5432, ep.Port)
}

func TestParseEndpointPodForm(t *testing.T) {
	ep, err := ParseEndpoint("pod:api-0:9090")
	require.NoError(t, err)
	assert.Equal(t, Pod, ep.Kind)
	assert.Equal(t, "api-0", ep.Pod)
	assert.Equal(t, 9090, ep.Port)
}

func TestParseEndpointRejectsOutOfRangePorts(t *testing.T) {
	_, err := ParseEndpoint("70000")
	assert.Error(t, err)

	_, err = ParseEndpoint("web:70000")
	assert.Error(t, err)

	_, err = ParseEndpoint("pod:api-0:-1")
	assert.Error(t, err)
}

func TestParseEndpointZeroRequestsDynamicPort(t *testing.T) {
	ep, err := ParseEndpoint("0")
	require.NoError(t, err)
	assert.Equal(t, Bare, ep.Kind)
	assert.Equal(t, 0, ep.Port)
}

func TestParseEndpointInvalidPodForm(t *testing.T) {
	_, err := ParseEndpoint("pod:nocolon")
	assert.Error(t, err)
}

func TestParseEndpointInvalidHostForm(t *testing.T) {
	_, err := ParseEndpoint("nocolonhere")
	assert.Error(t, err)
}

func TestSplitLocalRemotePicksTheBareSide(t *testing.T) {
	bare := Endpoint{Kind: Bare, Port: 8080}
	host := Endpoint{Kind: Host, Host: "web", Port: 5432}

	local, remote, err := splitLocalRemote(bare, host)
	require.NoError(t, err)
	assert.Equal(t, bare, local)
	assert.Equal(t, host, remote)

	local, remote, err = splitLocalRemote(host, bare)
	require.NoError(t, err)
	assert.Equal(t, bare, local)
	assert.Equal(t, host, remote)
}

func TestSplitLocalRemoteRejectsTwoBarePorts(t *testing.T) {
	_, _, err := splitLocalRemote(Endpoint{Kind: Bare, Port: 1}, Endpoint{Kind: Bare, Port: 2})
	assert.Error(t, err)
}

func TestSplitLocalRemoteRejectsTwoRemoteSides(t *testing.T) {
	host := Endpoint{Kind: Host, Host: "web", Port: 5432}
	pod := Endpoint{Kind: Pod, Pod: "api-0", Port: 9090}
	_, _, err := splitLocalRemote(host, pod)
	assert.Error(t, err)
}
