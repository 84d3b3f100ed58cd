package main

import "testing"

func TestWatchDirs(t *testing.T) {
	dirs := watchDirs("/etc/hardshell/policy.yaml", "/etc/hardshell/inventory.yaml")
	if len(dirs) != 1 || dirs[0] != "/etc/hardshell" {
		t.Errorf("watchDirs() = %v, want [/etc/hardshell]", dirs)
	}

	dirs = watchDirs("policy.yaml", "/etc/hardshell/inventory.yaml")
	if len(dirs) != 2 || dirs[0] != "." || dirs[1] != "/etc/hardshell" {
		t.Errorf("watchDirs() = %v, want [. /etc/hardshell]", dirs)
	}
}

func TestWatchedFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"/etc/hardshell/policy.yaml", true},
		{"/etc/hardshell/./policy.yaml", true},
		{"/etc/hardshell/inventory.yaml", true},
		{"/etc/hardshell/policy.yaml.swp", false},
		{"/etc/hardshell/other.yaml", false},
	}
	for _, tt := range tests {
		got := watchedFile(tt.name, "/etc/hardshell/policy.yaml", "/etc/hardshell/inventory.yaml")
		if got != tt.want {
			t.Errorf("watchedFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
