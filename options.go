package xmboot

import "time"

// Config holds the receive engine configuration.
type Config struct {
	// HeaderTimeout bounds the wait for the first byte of a packet. While
	// the region is still untouched every expiry sends a CRCProbe.
	HeaderTimeout time.Duration

	// PacketTimeout bounds each read of the packet body.
	PacketTimeout time.Duration

	// MaxErrors is the number of consecutive errors that aborts a session.
	MaxErrors int

	// CompletionNotice is sent as text after the final ACK.
	CompletionNotice string

	// Progress is called after every accepted packet (optional)
	Progress func(Session)
}

func defaultConfig() Config {
	return Config{
		HeaderTimeout:    time.Second,
		PacketTimeout:    time.Second,
		MaxErrors:        3,
		CompletionNotice: "\n\rdone!\n\r",
	}
}

// Option is a functional option for configuring the Receiver.
type Option func(*Config)

// WithTimeouts sets the header and packet timeouts.
func WithTimeouts(header, packet time.Duration) Option {
	return func(c *Config) {
		if header > 0 {
			c.HeaderTimeout = header
		}
		if packet > 0 {
			c.PacketTimeout = packet
		}
	}
}

// WithMaxErrors sets the consecutive error budget of a session.
func WithMaxErrors(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxErrors = n
		}
	}
}

// WithCompletionNotice replaces the text sent after a successful transfer.
func WithCompletionNotice(s string) Option {
	return func(c *Config) {
		c.CompletionNotice = s
	}
}

// WithProgress registers a callback run after each accepted packet.
//
// Example:
//
//	r := xmboot.NewReceiver(t, prog, jump,
//	    xmboot.WithProgress(func(s xmboot.Session) {
//	        glog.Infof("%d bytes written", s.Written())
//	    }),
//	)
func WithProgress(fn func(Session)) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}
