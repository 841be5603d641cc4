package probe

import (
	"github.com/Comcast/gots/v2/packet"
)

const (
	tsSyncByte    = 0x47
	rtpHeaderSize = 12
)

// countTSPackets reports how many sync-aligned MPEG-TS packets the payload
// carries, looking past a fixed RTP header when the payload does not start
// on a sync byte. Non-TS payloads count as zero; liveness never depends on it.
func countTSPackets(payload []byte) int {
	if len(payload) >= rtpHeaderSize+packet.PacketSize && payload[0] != tsSyncByte && payload[rtpHeaderSize] == tsSyncByte {
		payload = payload[rtpHeaderSize:]
	}

	count := 0
	for len(payload) >= packet.PacketSize {
		var pkt packet.Packet
		copy(pkt[:], payload[:packet.PacketSize])
		payload = payload[packet.PacketSize:]
		if pkt[0] != tsSyncByte {
			break
		}
		// 0x1FFF is the null PID used for stuffing.
		if pkt.PID() == 0x1FFF {
			continue
		}
		count++
	}
	return count
}
