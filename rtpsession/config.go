// Config loading via mapstructure, mirroring the decode-into-struct
// pattern SilvaMendes-go-rtpengine's Engine uses for its own
// bencode-decoded responses (rtpengine.go's DecoderConfig{TagName:
// "json"} usage) — generalised here to decode an arbitrary
// map[string]any (as produced by a JSON/YAML/TOML config loader
// upstream of this package) into SessionParameters.
package rtpsession

import (
	"github.com/mitchellh/mapstructure"
)

// ConfigOptions is the decode target for the configuration options a
// signalling layer commonly serialises to JSON/YAML before this
// package ever sees them: profile, RTCP-mux, MPRTP, RTX, header
// extensions, and packetisation mode.
type ConfigOptions struct {
	Profile            string            `mapstructure:"profile"`
	RTCPMux            bool              `mapstructure:"rtcp_mux"`
	MPRTPEnabled       bool              `mapstructure:"mprtp_enabled"`
	RTX                RTXConfigOption   `mapstructure:"rtx"`
	XR                 string            `mapstructure:"xr"`
	PacketisationMode  string            `mapstructure:"packetisation_mode"`
	AggregateSTAP      bool              `mapstructure:"aggregate_stap"`
	ExtensionIDs       map[string]uint8  `mapstructure:"extension_ids"`
	SessionBandwidthKbps uint32          `mapstructure:"session_bandwidth_kbps"`
}

// RTXConfigOption decodes the rtx config union: {disabled,
// circular(depth), nack_timed(window_ms), ack_driven}.
type RTXConfigOption struct {
	Mode       string `mapstructure:"mode"`
	Depth      int    `mapstructure:"depth"`
	WindowMs   uint32 `mapstructure:"window_ms"`
	PayloadPT  uint8  `mapstructure:"payload_type"`
	PrimaryPT  uint8  `mapstructure:"primary_payload_type"`
}

// DecodeConfigOptions decodes a raw map (as produced by any
// JSON/YAML/TOML unmarshaller) into ConfigOptions. An absent
// aggregate_stap key decodes as true, matching DefaultSessionParameters.
func DecodeConfigOptions(raw map[string]any) (*ConfigOptions, error) {
	opts := ConfigOptions{AggregateSTAP: true}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, newErr(ErrInvalidConfiguration, "DecodeConfigOptions", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, newErr(ErrInvalidConfiguration, "DecodeConfigOptions", err)
	}
	return &opts, nil
}

// ApplyTo merges decoded options onto an existing SessionParameters
// value (normally the result of DefaultSessionParameters), returning
// the merged value for the caller to pass to NewSessionParameters.
func (o *ConfigOptions) ApplyTo(p SessionParameters) (SessionParameters, error) {
	switch o.Profile {
	case "AVPF":
		p.Profile = ProfileAVPF
	case "AVP", "":
		p.Profile = ProfileAVP
	default:
		return p, newErr(ErrInvalidConfiguration, "ConfigOptions.ApplyTo", nil)
	}

	p.RTCPMux = o.RTCPMux
	p.MPRTPEnabled = o.MPRTPEnabled
	p.AggregateSTAP = o.AggregateSTAP
	if o.SessionBandwidthKbps > 0 {
		p.SessionBandwidth = o.SessionBandwidthKbps
	}

	switch o.PacketisationMode {
	case "single_nal":
		p.PacketisationMode = PacketisationSingleNAL
	case "interleaved":
		p.PacketisationMode = PacketisationInterleaved
	case "non_interleaved", "":
		p.PacketisationMode = PacketisationNonInterleaved
	}

	switch o.XR {
	case "rcvr_rtt":
		p.XR = XRReceiverReferenceTime
	case "dlrr":
		p.XR = XRDLRR
	default:
		p.XR = XRNone
	}

	switch o.RTX.Mode {
	case "disabled", "":
		p.RTXEnabled = false
		p.RTX = nil
	case "circular":
		p.RTXEnabled = true
		p.RTX = &RTXInfo{PayloadType: o.RTX.PayloadPT, PrimaryPT: o.RTX.PrimaryPT, Mode: RTXCircular, Depth: uint32(o.RTX.Depth)}
	case "nack_timed":
		p.RTXEnabled = true
		p.RTX = &RTXInfo{PayloadType: o.RTX.PayloadPT, PrimaryPT: o.RTX.PrimaryPT, Mode: RTXNackTimed, WindowMillis: o.RTX.WindowMs}
	case "ack_driven":
		p.RTXEnabled = true
		p.RTX = &RTXInfo{PayloadType: o.RTX.PayloadPT, PrimaryPT: o.RTX.PrimaryPT, Mode: RTXAckDriven}
	default:
		return p, newErr(ErrInvalidConfiguration, "ConfigOptions.ApplyTo", nil)
	}

	if p.ExtensionMap == nil {
		p.ExtensionMap = map[uint8]string{}
	}
	for name, id := range o.ExtensionIDs {
		p.ExtensionMap[id] = name
	}

	return p, nil
}
