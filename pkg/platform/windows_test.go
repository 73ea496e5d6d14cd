// SPDX-License-Identifier: MPL-2.0

package platform

import "testing"

func TestIsWindowsReservedName(t *testing.T) {
	t.Parallel()

	reserved := []string{
		"con", "CON", "Con", "prn", "aux", "nul",
		"com1", "COM9", "lpt1", "LPT9",
		"con.txt", "NUL.exe", "com1.log", "con.tar.gz",
	}
	for _, name := range reserved {
		if !IsWindowsReservedName(name) {
			t.Errorf("IsWindowsReservedName(%q) = false, want true", name)
		}
	}

	allowed := []string{
		"", "myfile", "myfile.txt", "confile", "console",
		"com0", "com10", "lpt0", "lpt10", "comx", ".con",
	}
	for _, name := range allowed {
		if IsWindowsReservedName(name) {
			t.Errorf("IsWindowsReservedName(%q) = true, want false", name)
		}
	}
}
