// sdpadapter translates an externally negotiated SDP offer/answer into
// SessionParameters, using github.com/pion/sdp/v3 — a direct teacher
// dependency (go.mod) the teacher's own pkg/rtp never imports.
// Signalling itself (the SDP offer/answer exchange, SIP/RTSP framing)
// stays outside this package; this file only covers the "translate a
// negotiated SessionDescription into our config" step.
package rtpsession

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// ParamsFromSDP builds a SessionParameters from a negotiated session
// description's mediaIndex'th media section, matching it against
// localEndpoint for the local side of the pair.
func ParamsFromSDP(desc *sdp.SessionDescription, mediaIndex int, local EndpointPair) (*SessionParameters, error) {
	if mediaIndex < 0 || mediaIndex >= len(desc.MediaDescriptions) {
		return nil, newErr(ErrInvalidConfiguration, "ParamsFromSDP", fmt.Errorf("media index %d out of range", mediaIndex))
	}
	media := desc.MediaDescriptions[mediaIndex]

	p := DefaultSessionParameters()
	p.Endpoints = []EndpointPair{local}

	switch strings.ToLower(media.MediaName.Media) {
	case "audio":
		p.MediaType = MediaTypeAudio
	case "video":
		p.MediaType = MediaTypeVideo
	default:
		p.MediaType = MediaTypeApplication
	}

	p.Direction = directionFromAttributes(media.Attributes)

	p.PayloadTable = make(map[uint8]PayloadInfo)
	for _, f := range media.MediaName.Formats {
		pt, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		info := PayloadInfo{ClockRate: 8000}
		if rtpmap, ok := findAttribute(media.Attributes, "rtpmap", f); ok {
			name, rate := parseRtpmap(rtpmap)
			info.EncodingName = name
			if rate > 0 {
				info.ClockRate = rate
			}
		}
		p.PayloadTable[uint8(pt)] = info
		if p.CurrentPayloadType == 0 {
			p.CurrentPayloadType = uint8(pt)
		}
	}

	if _, ok := findAttributeValue(media.Attributes, "rtcp-mux"); ok {
		p.RTCPMux = true
	}

	for _, attr := range media.Attributes {
		if attr.Key != "extmap" {
			continue
		}
		id, name, err := parseExtmap(attr.Value)
		if err == nil {
			if p.ExtensionMap == nil {
				p.ExtensionMap = map[uint8]string{}
			}
			p.ExtensionMap[id] = name
		}
	}

	for attrName, cname := range extractSDES(desc) {
		if attrName == "cname" {
			p.LocalSDES.CNAME = cname
		}
	}

	return NewSessionParameters(p)
}

func directionFromAttributes(attrs []sdp.Attribute) Direction {
	for _, a := range attrs {
		switch a.Key {
		case "sendrecv":
			return DirectionSendRecv
		case "sendonly":
			return DirectionSendOnly
		case "recvonly":
			return DirectionRecvOnly
		case "inactive":
			return DirectionInactive
		}
	}
	return DirectionSendRecv
}

func findAttribute(attrs []sdp.Attribute, key, valuePrefix string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key && strings.HasPrefix(a.Value, valuePrefix+" ") {
			return a.Value, true
		}
	}
	return "", false
}

func findAttributeValue(attrs []sdp.Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// parseRtpmap parses "<pt> <name>/<clockrate>[/<params>]".
func parseRtpmap(value string) (name string, clockRate uint32) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return "", 0
	}
	encParts := strings.Split(parts[1], "/")
	name = encParts[0]
	if len(encParts) > 1 {
		if rate, err := strconv.Atoi(encParts[1]); err == nil {
			clockRate = uint32(rate)
		}
	}
	return name, clockRate
}

// parseExtmap parses "<id>[/<direction>] <uri>" per RFC 5285 §7.
func parseExtmap(value string) (uint8, string, error) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return 0, "", fmt.Errorf("sdpadapter: malformed extmap %q", value)
	}
	idField := strings.SplitN(fields[0], "/", 2)[0]
	id, err := strconv.Atoi(idField)
	if err != nil {
		return 0, "", fmt.Errorf("sdpadapter: malformed extmap id %q", fields[0])
	}
	return uint8(id), fields[1], nil
}

// extractSDES pulls a=ssrc:<ssrc> cname:<value> style attributes (RFC
// 7273-adjacent convention many endpoints emit in SDP rather than via
// RTCP SDES) into a flat map.
func extractSDES(desc *sdp.SessionDescription) map[string]string {
	out := map[string]string{}
	for _, media := range desc.MediaDescriptions {
		for _, a := range media.Attributes {
			if a.Key != "ssrc" {
				continue
			}
			fields := strings.SplitN(a.Value, " ", 2)
			if len(fields) != 2 {
				continue
			}
			kv := strings.SplitN(fields[1], ":", 2)
			if len(kv) == 2 {
				out[kv[0]] = kv[1]
			}
		}
	}
	return out
}
