package webservice

import (
	"errors"
	"time"
)

const (
	HTTP_SERVER_READ_TIMEOUT  = 10 * time.Second
	HTTP_SERVER_WRITE_TIMEOUT = 30 * time.Second
	HTTP_SERVER_IDLE_TIMEOUT  = 120 * time.Second
)

var (
	ErrLoadTlsCerts = errors.New("webserver: unable to load TLS certificates")
	ErrBindPort     = errors.New("webserver: unable to bind to web service port")
)

// Config is the webservice section of the platform configuration file.
type Config struct {
	// TLS listener port
	TLSPort int `yaml:"tls-port" json:"tls_port" mapstructure:"tls-port"`

	// Common name presented on the listener certificate
	CommonName string `yaml:"common-name" json:"common_name" mapstructure:"common-name"`

	// Additional SANs on the listener certificate
	SANS []string `yaml:"sans" json:"sans" mapstructure:"sans"`
}

var DefaultConfig = Config{
	TLSPort:    8443,
	CommonName: "localhost",
}
