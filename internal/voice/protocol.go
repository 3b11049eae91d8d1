package voice

import "encoding/json"

// opcode identifies the kind of payload carried by a signalling frame.
// Named and numbered to match the platform's voice gateway, per the
// original source's VoiceOpCodes enum.
type opcode int

const (
	opIdentify          opcode = 0
	opSelectProtocol    opcode = 1
	opReady             opcode = 2
	opHeartbeat         opcode = 3
	opSelectProtocolAck opcode = 4
	opSpeaking          opcode = 5
	opHeartbeatAck      opcode = 6
	opResume            opcode = 7
	opHello             opcode = 8
	opResumed           opcode = 9
	opVideo             opcode = 12
)

// frame is the envelope every signalling message uses: {"op": ..., "d": ...}.
type frame struct {
	Op opcode          `json:"op"`
	D  json.RawMessage `json:"d"`
}

type identifyPayload struct {
	ServerID  string           `json:"server_id"`
	UserID    string           `json:"user_id"`
	SessionID string           `json:"session_id"`
	Token     string           `json:"token"`
	Video     bool             `json:"video"`
	Streams   []identifyStream `json:"streams"`
}

type identifyStream struct {
	Type    string `json:"type"`
	Rid     string `json:"rid"`
	Quality int    `json:"quality"`
}

type readyPayload struct {
	SSRC uint32 `json:"ssrc"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

type helloPayload struct {
	HeartbeatInterval float64 `json:"heartbeat_interval"`
}

type selectProtocolPayload struct {
	Protocol string             `json:"protocol"`
	Codecs   []codecDescription `json:"codecs"`
	Data     selectProtocolData `json:"data"`
}

type codecDescription struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Priority       int    `json:"priority"`
	PayloadType    byte   `json:"payload_type"`
	RTXPayloadType byte   `json:"rtx_payload_type,omitempty"`
	Encode         bool   `json:"encode,omitempty"`
	Decode         bool   `json:"decode,omitempty"`
}

type selectProtocolData struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	Mode    string `json:"mode"`
}

type selectProtocolAckPayload struct {
	SecretKey []byte `json:"secret_key"`
}

type speakingPayload struct {
	Speaking int    `json:"speaking"`
	Delay    int    `json:"delay"`
	SSRC     uint32 `json:"ssrc"`
}

type videoPayload struct {
	AudioSSRC uint32        `json:"audio_ssrc"`
	VideoSSRC uint32        `json:"video_ssrc"`
	RTXSSRC   uint32        `json:"rtx_ssrc"`
	Streams   []videoStream `json:"streams"`
}

type videoStream struct {
	Type          string       `json:"type"`
	Rid           string       `json:"rid"`
	SSRC          uint32       `json:"ssrc"`
	Active        bool         `json:"active"`
	Quality       int          `json:"quality"`
	RTXSSRC       uint32       `json:"rtx_ssrc"`
	MaxBitrate    int          `json:"max_bitrate"`
	MaxFramerate  int          `json:"max_framerate"`
	MaxResolution maxResHelper `json:"max_resolution"`
}

type maxResHelper struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type heartbeatPayload int
