package client

import (
	"github.com/arloliu/go-charws/protocol"
)

// AppConfig is the host application configuration consumed by the handshake.
type AppConfig struct {
	// AuthRequired tells the server in client_hello that this application authenticates.
	AuthRequired bool `mapstructure:"auth_required" json:"authRequired"`
	// RunConfigAuth makes the handshake send client_auth with Email and Password.
	// It only applies when AuthRequired is set, otherwise call Client.Auth manually.
	RunConfigAuth bool   `mapstructure:"run_config_auth" json:"runConfigAuth"`
	Email         string `mapstructure:"email" json:"email"`
	Password      string `mapstructure:"password" json:"password"`
	// AppAgent identifies the application for humans, formatted as
	// "devName/projectName : devContactInfo : pageOrUsage".
	AppAgent string `mapstructure:"app_agent" json:"app_agent"`
	// Intents are subscribed by the handshake. Empty skips the subscription.
	Intents []string `mapstructure:"intents" json:"intents"`
}

// Credentials returns the configured login data.
func (c AppConfig) Credentials() protocol.Credentials {
	return protocol.Credentials{Email: c.Email, Password: c.Password}
}

// AppData is the host application context: callbacks and configuration.
//
// All callbacks are optional. They are invoked from client goroutines and must not block for long.
type AppData struct {
	// ErrorCallback receives every server error response.
	ErrorCallback func(resp *protocol.Response)
	// Alert receives the error text of a server error response when ErrorCallback is not set.
	// Without both, the error is logged.
	Alert func(message string)
	// WSReady is called when the handshake finished.
	WSReady func()
	// WSError is called when the transport fails.
	WSError func(err error)
	// WSClose is called when the transport is closed.
	WSClose func(code int, reason string)
	// IntentFail maps an intent name to the callback invoked when its subscription is denied.
	IntentFail map[string]func()
	// IntentReceived maps an intent name to the callback invoked for each server push.
	IntentReceived map[string]func(resp *protocol.Response)

	Config AppConfig
}

// ConnectionHandle is the current transport together with the data it was started with.
type ConnectionHandle struct {
	Transport protocol.Transport
	// Factory constructs the transport of every connection attempt.
	Factory   protocol.TransportFactory
	URL       string
	App       *AppData
}
