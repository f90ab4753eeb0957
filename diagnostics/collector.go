package diagnostics

import "github.com/prometheus/client_golang/prometheus"

// field pairs a metric description with the Snapshot accessor that
// supplies its value, mirroring the per-field Desc+supplier table of the
// sockstats example pack's TCPInfoCollector.
type field struct {
	desc    *prometheus.Desc
	sampler func(Snapshot) uint32
}

// Collector adapts a *Counters into a prometheus.Collector. It holds no
// state of its own beyond the counters pointer and the label values the
// caller supplies at construction, matching the example pack's pattern of
// constant per-process labels plus a dynamic value table.
type Collector struct {
	counters *Counters
	fields   []field
}

// NewCollector returns a Collector exposing every riolink_* counter with
// constLabels attached (e.g. a stack instance tag), grounded on
// pkg/exporter/exporter.go's NewTCPInfoCollector.
func NewCollector(counters *Counters, constLabels prometheus.Labels) *Collector {
	c := &Collector{counters: counters}
	c.addFields(constLabels)
	return c
}

func (c *Collector) addFields(labels prometheus.Labels) {
	add := func(name, help string, sampler func(Snapshot) uint32) {
		c.fields = append(c.fields, field{
			desc:    prometheus.NewDesc("riolink_"+name, help, nil, labels),
			sampler: sampler,
		})
	}

	add("inbound_complete_total", "Packets fully received and delivered.", func(s Snapshot) uint32 { return s.InboundComplete })
	add("inbound_retry_total", "PACKET_RETRY symbols emitted for lack of a free inbound slot.", func(s Snapshot) uint32 { return s.InboundRetry })
	add("inbound_error_control_crc_total", "Inbound control symbols discarded for CRC-5 mismatch.", func(s Snapshot) uint32 { return s.InboundErrorControlCRC })
	add("inbound_error_packet_ackid_total", "Inbound SOP symbols rejected for an unexpected ackID.", func(s Snapshot) uint32 { return s.InboundErrorPacketAckID })
	add("inbound_error_packet_crc_total", "Inbound packets rejected for a CRC-16 mismatch.", func(s Snapshot) uint32 { return s.InboundErrorPacketCRC })
	add("inbound_error_illegal_character_total", "Illegal characters or decode errors signalled by the codec.", func(s Snapshot) uint32 { return s.InboundErrorIllegalCharacter })
	add("inbound_error_general_total", "Inbound packets rejected for exceeding the maximum length or other general cause.", func(s Snapshot) uint32 { return s.InboundErrorGeneral })
	add("inbound_error_packet_unsupported_total", "Inbound symbols of an unrecognized or unsupported shape.", func(s Snapshot) uint32 { return s.InboundErrorPacketUnsupported })

	add("outbound_complete_total", "Packets acknowledged by the peer.", func(s Snapshot) uint32 { return s.OutboundComplete })
	add("outbound_retry_total", "Window rewinds for retransmission after a PACKET_RETRY or a link-response resynchronization.", func(s Snapshot) uint32 { return s.OutboundRetry })
	add("outbound_link_latency_max_milliseconds", "Largest observed latency between packet transmission and its acknowledgement, in milliseconds of port time.", func(s Snapshot) uint32 { return s.OutboundLinkLatencyMax })
	add("outbound_error_timeout_total", "LINK_REQUESTs emitted for an unacknowledged packet exceeding port_timeout.", func(s Snapshot) uint32 { return s.OutboundErrorTimeout })
	add("outbound_error_packet_accepted_total", "PACKET_ACCEPTED symbols received with an unexpected ackID.", func(s Snapshot) uint32 { return s.OutboundErrorPacketAccepted })
	add("outbound_error_packet_retry_total", "PACKET_RETRY symbols received with an unexpected ackID.", func(s Snapshot) uint32 { return s.OutboundErrorPacketRetry })

	add("partner_link_request_total", "LINK_REQUEST symbols received from the peer.", func(s Snapshot) uint32 { return s.PartnerLinkRequest })
	add("partner_error_control_crc_total", "Peer-reported control CRC errors, per LINK_REQUEST input-status.", func(s Snapshot) uint32 { return s.PartnerErrorControlCRC })
	add("partner_error_packet_ackid_total", "Peer-reported unexpected ackID errors, per LINK_REQUEST input-status.", func(s Snapshot) uint32 { return s.PartnerErrorPacketAckID })
	add("partner_error_packet_crc_total", "Peer-reported packet CRC errors, per LINK_REQUEST input-status.", func(s Snapshot) uint32 { return s.PartnerErrorPacketCRC })
	add("partner_error_illegal_character_total", "Peer-reported illegal character errors, per LINK_REQUEST input-status.", func(s Snapshot) uint32 { return s.PartnerErrorIllegalCharacter })
	add("partner_error_general_total", "Peer-reported general errors, per LINK_REQUEST input-status.", func(s Snapshot) uint32 { return s.PartnerErrorGeneral })
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	for _, f := range c.fields {
		descs <- f.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	snap := c.counters.Load()
	for _, f := range c.fields {
		metrics <- prometheus.MustNewConstMetric(f.desc, prometheus.CounterValue, float64(f.sampler(snap)))
	}
}
