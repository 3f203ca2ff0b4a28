package core

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultPort is the SoundTouch control port.
const DefaultPort = 8090

// DeviceAddress identifies a SoundTouch device on the network.
type DeviceAddress struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	IP    string `json:"ip" yaml:"ip"`
	Port  int    `json:"port" yaml:"port"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
}

// HostPort returns the control endpoint as host:port.
func (a DeviceAddress) HostPort() string {
	port := a.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(a.IP, strconv.Itoa(port))
}

// String returns a short human-readable label.
func (a DeviceAddress) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s (%s)", a.Name, a.IP)
	}
	return a.IP
}

// DeviceInfo is the device self-description returned by /info.
type DeviceInfo struct {
	DeviceID   string        `json:"device_id" yaml:"device_id"`
	Name       string        `json:"name" yaml:"name"`
	Type       string        `json:"type" yaml:"type"`
	AccountID  string        `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Components []Component   `json:"components,omitempty" yaml:"components,omitempty"`
	Networks   []NetworkInfo `json:"networks,omitempty" yaml:"networks,omitempty"`
}

// Component is a hardware/software component reported by /info.
type Component struct {
	Category        string `json:"category" yaml:"category"`
	SoftwareVersion string `json:"software_version,omitempty" yaml:"software_version,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
}

// NetworkInfo is a network interface reported by /info.
type NetworkInfo struct {
	Type       string `json:"type" yaml:"type"`
	MACAddress string `json:"mac_address" yaml:"mac_address"`
	IPAddress  string `json:"ip_address" yaml:"ip_address"`
}

// PrimaryIP returns the first non-empty interface address.
func (i *DeviceInfo) PrimaryIP() string {
	for _, n := range i.Networks {
		if n.IPAddress != "" {
			return n.IPAddress
		}
	}
	return ""
}

// Capability is an entry from /capabilities.
type Capability struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	Info string `json:"info,omitempty" yaml:"info,omitempty"`
}

// Source is an entry from /sources.
type Source struct {
	Source  string `json:"source" yaml:"source"`
	Account string `json:"account,omitempty" yaml:"account,omitempty"`
	Status  string `json:"status" yaml:"status"`
	Name    string `json:"name" yaml:"name"`
}

// IsReady reports whether the source can be selected.
func (s Source) IsReady() bool {
	return s.Status == "READY"
}

// BassCapabilities describes the bass range a device supports.
type BassCapabilities struct {
	Available bool `json:"available" yaml:"available"`
	Min       int  `json:"min" yaml:"min"`
	Max       int  `json:"max" yaml:"max"`
	Default   int  `json:"default" yaml:"default"`
}

// Bass is the current bass setting.
type Bass struct {
	Target int `json:"target" yaml:"target"`
	Actual int `json:"actual" yaml:"actual"`
}
