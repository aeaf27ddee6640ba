package serialmux

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// ErrPortsNotFound is returned when no radar CLI/data port pair is attached.
var ErrPortsNotFound = errors.New("radar serial ports not found")

// Interface descriptions reported by the XDS110 debug probe and the CP2105
// bridge used on TI evaluation boards.
var (
	cliDescriptions  = []string{"XDS110 Class Application/User UART", "Enhanced COM Port"}
	dataDescriptions = []string{"XDS110 Class Auxiliary Data Port", "Standard COM Port"}
)

// USB IDs of the same bridges. Where the host does not expose interface
// descriptions, the lower-numbered device node is the CLI port.
var radarBridges = map[string]bool{
	"0451:BEF3": true, // TI XDS110
	"10C4:EA70": true, // Silicon Labs CP2105
}

// RadarPorts names the two UARTs of a radar board.
type RadarPorts struct {
	CLI  string
	Data string
}

// PortLister enumerates serial ports. enumerator.GetDetailedPortsList
// satisfies it.
type PortLister func() ([]*enumerator.PortDetails, error)

// DiscoverPorts finds the radar CLI and data ports among the attached USB
// serial devices.
func DiscoverPorts(list PortLister) (RadarPorts, error) {
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	ports, err := list()
	if err != nil {
		return RadarPorts{}, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var found RadarPorts
	var byID []string
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		switch {
		case containsAny(p.Product, cliDescriptions):
			found.CLI = p.Name
		case containsAny(p.Product, dataDescriptions):
			found.Data = p.Name
		case radarBridges[strings.ToUpper(p.VID+":"+p.PID)]:
			byID = append(byID, p.Name)
		}
	}

	if found.CLI == "" && found.Data == "" && len(byID) >= 2 {
		sort.Strings(byID)
		found = RadarPorts{CLI: byID[0], Data: byID[1]}
	}
	if found.CLI == "" || found.Data == "" {
		return found, fmt.Errorf("cli %q data %q: %w", found.CLI, found.Data, ErrPortsNotFound)
	}
	return found, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
