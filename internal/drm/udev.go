package drm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
)

// Card describes a DRM card node discovered through the udev sysfs tree.
type Card struct {
	Path    string // device node, e.g. /dev/dri/card1
	SysPath string // kobject directory under /sys/devices
	Driver  string // kernel driver bound to the parent device, if resolvable
}

// EnumerateCards crawls the udev sysfs tree and returns every DRM card node
// on the system, sorted by device path. Render nodes and connectors share
// the drm subsystem but carry different DEVNAMEs, so the matcher filters
// them out before the queue sees them.
func EnumerateCards() ([]Card, error) {
	matcher := &netlink.RuleDefinitions{}
	matcher.AddRule(netlink.RuleDefinition{
		Env: map[string]string{
			"SUBSYSTEM": "drm",
			"DEVNAME":   "^dri/card[0-9]+$",
		},
	})

	queue := make(chan crawler.Device)
	// Buffered so a matcher compile failure reported before the walk starts
	// cannot block inside ExistingDevices.
	errs := make(chan error, 1)
	crawler.ExistingDevices(queue, errs, matcher)

	var cards []Card
	for {
		select {
		case device, more := <-queue:
			if !more {
				sort.Slice(cards, func(i, j int) bool { return cards[i].Path < cards[j].Path })
				return cards, nil
			}
			cards = append(cards, cardFromDevice(device))
		case err := <-errs:
			return nil, fmt.Errorf("crawl sysfs for DRM devices: %w", err)
		}
	}
}

func cardFromDevice(device crawler.Device) Card {
	card := Card{
		Path:    filepath.Join("/dev", device.Env["DEVNAME"]),
		SysPath: device.KObj,
	}
	// The card kobject links to its parent device, whose driver link names
	// the kernel module. Failure leaves Driver empty rather than erroring:
	// virtual devices (vkms, vgem) have no parent driver link.
	if link, err := os.Readlink(filepath.Join(device.KObj, "device", "driver")); err == nil {
		card.Driver = filepath.Base(link)
	}
	return card
}
