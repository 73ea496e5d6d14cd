// SPDX-License-Identifier: MPL-2.0

// Command xec is a universal command execution engine: it runs commands
// against local, SSH, Docker, Kubernetes, and remote-Docker targets behind
// one consistent interface.
package main

func main() {
	Execute()
}
