package model

// FormattedHost is the per-request projection of Host x UserSecrets x Override.
//
// Every field a generator reads is always present: strings default to "",
// bools to false and nil maps are read as empty. Generators never need to
// null-check.
type FormattedHost struct {
	HostID uint   `json:"-"`
	Tag    string `json:"tag"`

	Remark   string   `json:"remark"`
	Protocol Protocol `json:"protocol"`
	Network  Network  `json:"network"`
	Address  string   `json:"address"`
	Port     int      `json:"port"`

	// Password is the protocol secret: VLESS UUID, trojan or shadowsocks password.
	Password string `json:"password"`
	// Cipher is only set for shadowsocks.
	Cipher string `json:"cipher,omitempty"`

	Security      Security `json:"security"`
	SNI           string   `json:"sni"`
	ALPN          []string `json:"alpn"`
	Fingerprint   string   `json:"fingerprint"`
	AllowInsecure bool     `json:"allowInsecure"`

	Path       string `json:"path"`
	HostHeader string `json:"host"`

	PublicKey string `json:"publicKey"`
	ShortID   string `json:"shortId"`
	SpiderX   string `json:"spiderX"`
	Flow      string `json:"flow"`

	ServiceName string `json:"serviceName"`
	Authority   string `json:"authority"`
	MultiMode   bool   `json:"multiMode"`

	HeaderType string `json:"headerType"`

	XHTTPMode  string         `json:"xhttpMode"`
	XHTTPExtra map[string]any `json:"xhttpExtra"`

	Mux     map[string]any `json:"mux"`
	Sockopt map[string]any `json:"sockopt"`

	XrayTemplate string `json:"-"`
}

// TLSEnabled reports whether the host runs over TLS or Reality.
func (h FormattedHost) TLSEnabled() bool {
	return h.Security == SecurityTLS || h.Security == SecurityReality
}
