// Package capture extracts devices and communications from packet capture
// files. Parsing runs in an isolated child process so a hostile or malformed
// capture can be killed without taking the server down; only plain JSON data
// crosses the process boundary.
package capture

import "sort"

// Device is the transient record of one discovered MAC address.
// IPs and Protocols behave as sets but are stored sorted so that merge
// results are identical regardless of merge order.
type Device struct {
	IPs       []string `json:"ips"`
	Protocols []string `json:"protocols"`
}

// DeviceMap is keyed by canonical source MAC (upper-case, colon-separated).
type DeviceMap map[string]*Device

// CommMap counts frames per directed (srcMAC, dstMAC) pair.
type CommMap map[string]map[string]int64

// Result is what one parsed capture file yields.
type Result struct {
	Devices DeviceMap `json:"devices"`
	Comms   CommMap   `json:"communications"`
}

// NewResult returns an empty, initialized Result.
func NewResult() *Result {
	return &Result{Devices: DeviceMap{}, Comms: CommMap{}}
}

// AddIP inserts ip into the device's IP set.
func (d *Device) AddIP(ip string) {
	d.IPs = insertSorted(d.IPs, ip)
}

// AddProtocol inserts a normalized protocol label into the device's set.
func (d *Device) AddProtocol(proto string) {
	d.Protocols = insertSorted(d.Protocols, proto)
}

// FirstIP returns the first IP of the set, or "" when none was observed.
func (d *Device) FirstIP() string {
	if len(d.IPs) == 0 {
		return ""
	}
	return d.IPs[0]
}

func insertSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	if i < len(s) && s[i] == v {
		return s
	}
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func (m DeviceMap) device(mac string) *Device {
	d, ok := m[mac]
	if !ok {
		d = &Device{}
		m[mac] = d
	}
	return d
}

// Count increments the frame counter for a directed MAC pair.
func (m CommMap) Count(srcMAC, dstMAC string, n int64) {
	dsts, ok := m[srcMAC]
	if !ok {
		dsts = map[string]int64{}
		m[srcMAC] = dsts
	}
	dsts[dstMAC] += n
}
