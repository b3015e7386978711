package version

// Version is stamped at build time via -ldflags.
var Version = "dev"

type Payload struct {
	Version string `json:"version"`
}

func Get() Payload {
	return Payload{Version: Version}
}
