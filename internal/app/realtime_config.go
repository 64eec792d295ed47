package app

import "github.com/charlesng35/proctorrelay/internal/realtime"

// HubOptions converts the realtime and server settings into hub options.
func (c *Config) HubOptions() realtime.Options {
	return realtime.Options{
		MailboxSize:    c.Realtime.MailboxSize,
		WriteTimeout:   c.Realtime.WriteTimeout,
		PingInterval:   c.Realtime.PingInterval,
		PongTimeout:    c.Realtime.PongTimeout,
		MaxMessageSize: c.Realtime.MaxMessageSize,
		AllowedOrigins: append([]string(nil), c.Server.AllowedOrigins...),
	}
}
