package capture

// MergeDevices folds src into dst and returns dst. Per-MAC IP and protocol
// sets are unioned. The operation is associative and commutative, so a batch
// of files can be folded in any order.
func MergeDevices(dst, src DeviceMap) DeviceMap {
	for mac, d := range src {
		merged := dst.device(mac)
		for _, ip := range d.IPs {
			merged.AddIP(ip)
		}
		for _, proto := range d.Protocols {
			merged.AddProtocol(proto)
		}
	}
	return dst
}

// MergeComms folds src into dst and returns dst, summing per-pair counters.
// Associative and commutative like MergeDevices.
func MergeComms(dst, src CommMap) CommMap {
	for srcMAC, dsts := range src {
		for dstMAC, count := range dsts {
			dst.Count(srcMAC, dstMAC, count)
		}
	}
	return dst
}

// Merge folds another file's result into r.
func (r *Result) Merge(other *Result) {
	MergeDevices(r.Devices, other.Devices)
	MergeComms(r.Comms, other.Comms)
}
