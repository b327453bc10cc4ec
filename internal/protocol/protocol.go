// Package protocol maps raw dissector labels onto the canonical protocol
// taxonomy used across the inventory: industrial protocols keep their proper
// names, well-known IT protocols collapse to a small generic set, and bare
// transports are dropped entirely.
package protocol

import "strings"

// Canonical industrial protocol names.
const (
	Modbus     = "Modbus"
	Profinet   = "Profinet"
	OPCUA      = "OPC-UA"
	EtherNetIP = "EtherNet/IP"
	BACnet     = "BACnet"
	DNP3       = "DNP3"
	KNX        = "KNX"
	MBus       = "M-Bus"
	IEC61850   = "IEC 61850"
	S7         = "S7"
	MQTT       = "MQTT"
)

// canonical maps upper-cased raw labels to their canonical form.
// An empty value means the label is a base transport and must be dropped.
var canonical = map[string]string{
	// Modbus family
	"MODBUS":       Modbus,
	"MODBUS-TCP":   Modbus,
	"MODBUS-RTU":   Modbus,
	"MODBUS-ASCII": Modbus,

	// Profinet
	"PROFINET":    Profinet,
	"PN":          Profinet,
	"PROFINET-IO": Profinet,

	// OPC
	"OPC-UA": OPCUA,
	"OPCUA":  OPCUA,
	"OPC":    OPCUA,

	// EtherNet/IP / CIP
	"ETHERNET/IP": EtherNetIP,
	"ETHERNETIP":  EtherNetIP,
	"ENIP":        EtherNetIP,
	"CIP":         EtherNetIP,

	// BACnet
	"BACNET":      BACnet,
	"BACNET-IP":   BACnet,
	"BACNET-MSTP": BACnet,

	// DNP3
	"DNP3": DNP3,
	"DNP":  DNP3,

	// KNX
	"KNX":    KNX,
	"KNXNET": KNX,

	// M-Bus
	"M-BUS": MBus,
	"MBUS":  MBus,

	// IEC 61850 (MMS is the Manufacturing Message Specification transport)
	"IEC61850":  IEC61850,
	"IEC-61850": IEC61850,
	"MMS":       IEC61850,

	// S7
	"S7":          S7,
	"S7COMM":      S7,
	"S7-PROTOCOL": S7,

	// MQTT
	"MQTT":    MQTT,
	"MQTT-SN": MQTT,

	// Generic IT protocols keep a canonical generic name. They stay visible
	// rather than being bucketed into an opaque "Other".
	"HTTP":   "HTTP(S)",
	"HTTPS":  "HTTP(S)",
	"FTP":    "FTP/SFTP",
	"FTPS":   "FTP/SFTP",
	"SFTP":   "FTP/SFTP",
	"SSH":    "SSH",
	"TELNET": "Telnet",
	"SNMP":   "SNMP",
	"SNMPV1": "SNMP",
	"SNMPV2": "SNMP",
	"SNMPV3": "SNMP",
	"DNS":    "DNS",
	"DHCP":   "DHCP",

	// Base transports carry no application information.
	"TCP":    "",
	"UDP":    "",
	"IP":     "",
	"IPV4":   "",
	"ARP":    "",
	"ICMP":   "",
	"ICMPV4": "",
	"ICMPV6": "",
	"IPV6":   "",
	"LLC":    "",
}

// Normalize maps a raw dissector label to its canonical protocol name.
// Returns "" for base transports (the label is dropped). Labels with no
// mapping pass through unchanged: an unrecognized-but-specific protocol name
// is still useful to the operator.
func Normalize(raw string) string {
	label := strings.ToUpper(strings.TrimSpace(raw))
	if label == "" {
		return ""
	}

	if mapped, ok := canonical[label]; ok {
		return mapped
	}

	// Substring match catches dissector variants like "MODBUS/TCP PDU".
	for key, mapped := range canonical {
		if mapped != "" && strings.Contains(label, key) {
			return mapped
		}
	}

	return label
}

// IndustrialProtocols returns the canonical industrial protocol catalog
// exposed to the UI for import display parity.
func IndustrialProtocols() []string {
	return []string{
		Modbus, Profinet, OPCUA, EtherNetIP, BACnet, DNP3,
		KNX, MBus, IEC61850, S7, MQTT,
	}
}

// InterfaceProtocols returns the protocol options selectable on an asset
// interface, a superset of the import catalog.
func InterfaceProtocols() []string {
	return []string{
		"Modbus TCP", "Modbus RTU", "EtherNet/IP", "DNP3", "BACnet", "OPC UA",
		"HTTP", "HTTPS", "FTP", "SFTP", "MQTT", "CoAP", "XMPP",
		"SNMP", "Syslog", "NTP", "DNS", "DHCP",
		"RADIUS", "LDAP", "Kerberos", "TLS", "SSL", "SSH", "Telnet",
		"Serial", "Other",
	}
}
