package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/dmarzo/otmap/internal/protocol"
)

// portLabels maps well-known TCP/UDP ports to dissector-style labels for
// frames whose application layer gopacket cannot decode. The labels go
// through protocol.Normalize like any other.
var portLabels = map[uint16]string{
	502:   "MODBUS-TCP",
	102:   "S7COMM",
	44818: "ENIP",
	2222:  "ENIP",
	47808: "BACNET",
	20000: "DNP3",
	1883:  "MQTT",
	8883:  "MQTT",
	4840:  "OPC-UA",
	34962: "PROFINET",
	34963: "PROFINET",
	34964: "PROFINET",
	20:    "FTP",
	21:    "FTP",
	22:    "SSH",
	23:    "TELNET",
	53:    "DNS",
	67:    "DHCP",
	68:    "DHCP",
	80:    "HTTP",
	161:   "SNMP",
	162:   "SNMP",
	443:   "HTTPS",
}

// ExtractFile parses one classic-pcap file into devices and communications.
// Individual undecodable frames are skipped; an unreadable file or header
// fails the whole extraction.
//
// This runs inside the parse worker process, never in the server itself.
func ExtractFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading capture header: %w", err)
	}

	res := NewResult()
	for {
		data, _, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading capture frames: %w", err)
		}
		recordFrame(res, gopacket.NewPacket(data, r.LinkType(), gopacket.NoCopy))
	}
	return res, nil
}

// recordFrame folds a single frame into the result. Frames without an
// Ethernet layer are skipped silently.
//
// Both endpoints become devices: the sender with its source IP, and, for
// unicast destinations, the receiver with the destination IP.
// Broadcast/multicast destinations are not devices.
func recordFrame(res *Result, pkt gopacket.Packet) {
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return
	}
	eth := ethLayer.(*layers.Ethernet)
	srcMAC := CanonicalMAC(eth.SrcMAC)
	dstMAC := CanonicalMAC(eth.DstMAC)

	ipLayer, _ := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	proto := protocol.Normalize(highestLayerLabel(pkt))

	src := res.Devices.device(srcMAC)
	if ipLayer != nil {
		src.AddIP(ipLayer.SrcIP.String())
	}
	if proto != "" {
		src.AddProtocol(proto)
	}

	if len(eth.DstMAC) > 0 && eth.DstMAC[0]&1 == 0 { // unicast only
		dst := res.Devices.device(dstMAC)
		if ipLayer != nil {
			dst.AddIP(ipLayer.DstIP.String())
		}
		if proto != "" {
			dst.AddProtocol(proto)
		}
	}

	res.Comms.Count(srcMAC, dstMAC, 1)
}

// highestLayerLabel returns the name of the deepest decoded layer, mirroring
// what a dissector reports as the frame's protocol. Bare TCP/UDP frames fall
// back to the well-known-port table.
func highestLayerLabel(pkt gopacket.Packet) string {
	ls := pkt.Layers()
	for i := len(ls) - 1; i >= 0; i-- {
		t := ls[i].LayerType()
		if t == gopacket.LayerTypePayload || t == gopacket.LayerTypeDecodeFailure {
			continue
		}
		switch l := ls[i].(type) {
		case *layers.TCP:
			if label := portLabel(uint16(l.SrcPort), uint16(l.DstPort)); label != "" {
				return label
			}
		case *layers.UDP:
			if label := portLabel(uint16(l.SrcPort), uint16(l.DstPort)); label != "" {
				return label
			}
		}
		return t.String()
	}
	return ""
}

func portLabel(src, dst uint16) string {
	if label, ok := portLabels[dst]; ok {
		return label
	}
	if label, ok := portLabels[src]; ok {
		return label
	}
	return ""
}

// CanonicalMAC renders a hardware address upper-case and colon-separated.
// All device and communication keys use this form.
func CanonicalMAC(hw net.HardwareAddr) string {
	return strings.ToUpper(hw.String())
}
