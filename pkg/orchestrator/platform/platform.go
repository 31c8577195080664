// Package platform holds the per-platform command sets the Connection
// Manager needs once a device's driver is known: a paging-disable
// command to run right after login, and a prompt pattern used to detect
// when a command's output has finished arriving. Detection itself
// (spec.md §4.2's "one-shot identification") is driven from a banner or
// show-version sniff against each driver's Identify function.
package platform

import (
	"regexp"
	"strings"

	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

// Driver describes one device platform's CLI conventions.
type Driver struct {
	Platform model.Platform

	// DisablePagingCommand is run once after login so that long command
	// output does not stall behind a "--More--" prompt.
	DisablePagingCommand string

	// Prompt matches the device's operational-mode prompt, used to detect
	// end-of-output when reading a command's response.
	Prompt *regexp.Regexp

	// identify reports whether a banner/show-version snippet belongs to
	// this platform.
	identify func(banner string) bool
}

var drivers = []Driver{
	{
		Platform:              model.PlatformIOSXR,
		DisablePagingCommand:  "terminal length 0",
		Prompt:                regexp.MustCompile(`(?m)^RP/\d+/\w+/CPU\d+:\S+[#>]\s*$|(?m)^\S+[#>]\s*$`),
		identify: func(banner string) bool {
			return strings.Contains(banner, "IOS XR") || strings.Contains(banner, "IOS-XR")
		},
	},
	{
		Platform:              model.PlatformNXOS,
		DisablePagingCommand:  "terminal length 0",
		Prompt:                regexp.MustCompile(`(?m)^\S+#\s*$`),
		identify: func(banner string) bool {
			return strings.Contains(banner, "NX-OS") || strings.Contains(banner, "Nexus")
		},
	},
	{
		Platform:              model.PlatformIOS,
		DisablePagingCommand:  "terminal length 0",
		Prompt:                regexp.MustCompile(`(?m)^\S+[#>]\s*$`),
		identify: func(banner string) bool {
			return strings.Contains(banner, "IOS Software") || strings.Contains(banner, "Cisco IOS")
		},
	},
}

// Detect returns the Driver matching a login banner or "show version"
// snippet. Falls back to the generic IOS driver (the broadest prompt
// pattern) if nothing matches — routers that don't self-identify still
// need a usable prompt regex rather than a hard failure.
func Detect(banner string) Driver {
	for _, d := range drivers {
		if d.identify(banner) {
			return d
		}
	}
	return For(model.PlatformIOS)
}

// For returns the Driver for an explicit platform hint. Falls back to the
// generic IOS driver for PlatformAuto or an unrecognized value, since
// auto-detection happens via Detect, not For.
func For(p model.Platform) Driver {
	for _, d := range drivers {
		if d.Platform == p {
			return d
		}
	}
	return drivers[2] // IOS: broadest prompt pattern, safest default
}
