package model

type Protocol string

const (
	ProtocolVLESS       Protocol = "vless"
	ProtocolTrojan      Protocol = "trojan"
	ProtocolShadowsocks Protocol = "shadowsocks"
)

type Network string

const (
	NetworkTCP         Network = "tcp"
	NetworkRaw         Network = "raw"
	NetworkWS          Network = "ws"
	NetworkGRPC        Network = "grpc"
	NetworkHTTPUpgrade Network = "httpupgrade"
	// NetworkXHTTP is not understood by classic clients; generators decide
	// whether to skip it.
	NetworkXHTTP Network = "xhttp"
)

type Security string

const (
	SecurityNone    Security = "none"
	SecurityTLS     Security = "tls"
	SecurityReality Security = "reality"
)

// ShadowsocksCipher is the only cipher issued to users.
const ShadowsocksCipher = "chacha20-ietf-poly1305"

// Host is a stored proxy endpoint. Its lifecycle is owned by the store.
type Host struct {
	ID       uint
	SquadID  uint
	Position int

	Remark   string
	Protocol Protocol
	Network  Network
	Address  string
	Port     int

	Security      Security
	SNI           string
	ALPN          string // comma separated, e.g. "h2,http/1.1"
	Fingerprint   string
	AllowInsecure bool

	// OverrideSNIFromAddress makes SNI follow the (possibly overridden) address.
	OverrideSNIFromAddress bool

	Path       string
	HostHeader string

	PublicKey string
	ShortID   string
	SpiderX   string
	Flow      string

	// grpc
	ServiceName string
	Authority   string
	MultiMode   bool

	// tcp/raw camouflage: "" / "none" / "http"
	HeaderType string

	// xhttp
	XHTTPMode  string
	XHTTPExtra map[string]any

	Mux     map[string]any
	Sockopt map[string]any

	// XrayTemplate optionally replaces the Xray-JSON base template for this host.
	XrayTemplate string

	Tag      string
	Disabled bool
}

// Override replaces selected fields of a host for one squad. Nil means keep.
type Override struct {
	HostID     uint
	Address    *string
	Port       *int
	Remark     *string
	SNI        *string
	HostHeader *string
}
