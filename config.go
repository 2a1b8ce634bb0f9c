package framesock

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// DefaultAddress is used when Config.Address is empty: an ephemeral loopback port.
const DefaultAddress = "127.0.0.1:0"

// DefaultBacklog is the listen backlog used by DefaultConfig.
const DefaultBacklog = 10

// Config describes a Server's listening socket and the defaults applied to
// the connections it accepts.
type Config struct {
	// Address is host:port to listen on. Empty means DefaultAddress.
	Address string `validate:"omitempty,tcp_address"`
	// Backlog is the number of pending connections the OS may queue.
	Backlog int `validate:"gte=0"`
	// MaxMessageSize caps received messages on accepted connections.
	// Zero keeps the connection default, -1 removes the cap.
	MaxMessageSize int `validate:"gte=-1"`
	// SendBuffer is the queued-write capacity of accepted connections.
	SendBuffer int `validate:"gte=0"`
	// Heartbeat sets read/write deadlines (heartbeat * 2) on accepted connections.
	Heartbeat time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a Config listening on an ephemeral loopback port.
func DefaultConfig() Config {
	return Config{
		Address: DefaultAddress,
		Backlog: DefaultBacklog,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tcp_address", func(fl validator.FieldLevel) bool {
		_, err := net.ResolveTCPAddr("tcp", fl.Field().String())
		return err == nil
	})
	return v
}

// Validate reports every invalid field as a single ErrConfiguration.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithMessage(ErrConfiguration, err.Error())
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s %v violates %s", fe.Field(), fe.Value(), rule))
	}
	return errors.WithMessage(ErrConfiguration, strings.Join(parts, "; "))
}

// address returns the resolved listen address.
func (c Config) address() (*net.TCPAddr, error) {
	addr := c.Address
	if addr == "" {
		addr = DefaultAddress
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.WithMessage(ErrConfiguration, err.Error())
	}
	return tcpAddr, nil
}

// connOptions translates the per-connection fields into Options.
func (c Config) connOptions() []Option {
	var opts []Option
	if c.MaxMessageSize != 0 {
		opts = append(opts, MessageMaxSize(c.MaxMessageSize))
	}
	if c.SendBuffer > 0 {
		opts = append(opts, BufferSizeOption(c.SendBuffer))
	}
	if c.Heartbeat > 0 {
		opts = append(opts, HeartbeatOption(c.Heartbeat))
	}
	return opts
}
