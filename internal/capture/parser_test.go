package capture

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	hw, err := net.ParseMAC(s)
	require.NoError(t, err)
	return hw
}

// buildFrame serializes an Ethernet/IPv4/TCP frame.
func buildFrame(t *testing.T, srcMAC, dstMAC, srcIP, dstIP string, dstPort uint16) []byte {
	t.Helper()

	eth := layers.Ethernet{
		SrcMAC:       mustMAC(t, srcMAC),
		DstMAC:       mustMAC(t, dstMAC),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP),
		DstIP:    net.ParseIP(dstIP),
	}
	tcp := layers.TCP{
		SrcPort: 40001,
		DstPort: layers.TCPPort(dstPort),
		SYN:     true,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(&ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &eth, &ip, &tcp))
	return buf.Bytes()
}

func writeCapture(t *testing.T, frames ...[]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Now()
	for _, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func TestExtractFileModbusScenario(t *testing.T) {
	// Three Modbus/TCP frames from device 01 to device 02.
	frame := buildFrame(t, "aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02", "10.0.0.1", "10.0.0.2", 502)
	path := writeCapture(t, frame, frame, frame)

	res, err := ExtractFile(path)
	require.NoError(t, err)

	require.Len(t, res.Devices, 2)

	src := res.Devices["AA:BB:CC:DD:EE:01"]
	require.NotNil(t, src)
	assert.Equal(t, []string{"10.0.0.1"}, src.IPs)
	assert.Equal(t, []string{"Modbus"}, src.Protocols)

	dst := res.Devices["AA:BB:CC:DD:EE:02"]
	require.NotNil(t, dst)
	assert.Equal(t, []string{"10.0.0.2"}, dst.IPs)
	assert.Equal(t, []string{"Modbus"}, dst.Protocols)

	assert.Equal(t, int64(3), res.Comms["AA:BB:CC:DD:EE:01"]["AA:BB:CC:DD:EE:02"])
}

func TestExtractFileBroadcastDestination(t *testing.T) {
	frame := buildFrame(t, "aa:bb:cc:dd:ee:01", "ff:ff:ff:ff:ff:ff", "10.0.0.1", "10.0.0.255", 67)
	path := writeCapture(t, frame)

	res, err := ExtractFile(path)
	require.NoError(t, err)

	// Broadcast destination is counted as traffic but never becomes a device.
	require.Len(t, res.Devices, 1)
	assert.Equal(t, int64(1), res.Comms["AA:BB:CC:DD:EE:01"]["FF:FF:FF:FF:FF:FF"])
	assert.Equal(t, []string{"DHCP"}, res.Devices["AA:BB:CC:DD:EE:01"].Protocols)
}

func TestExtractFileBareTransportDropped(t *testing.T) {
	// Port 40002 is in no label table: the frame contributes the device and
	// the communication edge, but no protocol.
	frame := buildFrame(t, "aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02", "10.0.0.1", "10.0.0.2", 40002)
	path := writeCapture(t, frame)

	res, err := ExtractFile(path)
	require.NoError(t, err)
	assert.Empty(t, res.Devices["AA:BB:CC:DD:EE:01"].Protocols)
}

func TestExtractFileCorruptHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.pcap")
	require.NoError(t, os.WriteFile(path, []byte("this is not a capture"), 0o644))

	_, err := ExtractFile(path)
	assert.Error(t, err)
}

func TestExtractFileMissing(t *testing.T) {
	_, err := ExtractFile(filepath.Join(t.TempDir(), "nope.pcap"))
	assert.Error(t, err)
}
