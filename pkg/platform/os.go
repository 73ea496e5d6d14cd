// SPDX-License-Identifier: MPL-2.0

package platform

// GOOS values compared against runtime.GOOS, named so call sites read as
// prose instead of string literals.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)
