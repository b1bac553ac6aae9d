package internal

import "time"

// Config is decoded from the environment at startup. The store URL and the
// service credential have no defaults on purpose: a relay without them is
// misconfigured and must not start.
type Config struct {
	Port          int           `env:"PORT,default=8080"`
	DatabaseURL   string        `env:"DATABASE_URL,required=true"`
	ServiceKey    string        `env:"SERVICE_KEY,required=true"`
	AllowedOrigin string        `env:"ALLOWED_ORIGIN,default=*"`
	LogLevel      string        `env:"LOG_LEVEL,default=INFO"`

	// ShutdownGrace delays the graceful stop after a termination signal,
	// so platform health probes tolerate the shutdown window.
	ShutdownGrace   time.Duration `env:"SHUTDOWN_GRACE,default=10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`

	EventBufferSize int           `env:"EVENT_BUFFER_SIZE,default=256"`
	SinkBufferSize  int           `env:"SINK_BUFFER_SIZE,default=64"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,default=5s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
}
