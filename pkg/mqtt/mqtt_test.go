package mqtt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFiles serves a fixed CA file.
type stubFiles struct {
	data []byte
	err  error
}

func (f stubFiles) IsFileExists(string) (bool, error)  { return f.err == nil, nil }
func (f stubFiles) ReadFileRaw(string) ([]byte, error) { return f.data, f.err }
func (f stubFiles) ReadYamlFile(string, any) error     { return errors.New("unsupported") }

func TestClientOptions_HandlersDoNotShareOneGoroutine(t *testing.T) {
	// Setup
	svc := NewMqttService(stubFiles{})

	// Execute
	opts, err := svc.clientOptions(ConnectionOptions{
		Broker:   "tcp://localhost:1883",
		ClientID: "verifier-1",
		Username: "svc",
		Password: "secret",
	})

	// Assert
	require.NoError(t, err)
	assert.False(t, opts.Order)
	assert.True(t, opts.AutoReconnect)
	assert.Equal(t, "verifier-1", opts.ClientID)
	assert.Equal(t, "svc", opts.Username)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "localhost:1883", opts.Servers[0].Host)
	assert.Nil(t, opts.TLSConfig)
}

func TestClientOptions_CACertificate(t *testing.T) {
	t.Run("unreadable file", func(t *testing.T) {
		svc := NewMqttService(stubFiles{err: errors.New("permission denied")})

		_, err := svc.clientOptions(ConnectionOptions{Broker: "ssl://broker:8883", CACertificate: "/etc/ca.pem"})

		assert.ErrorContains(t, err, "failed to read CA certificate")
	})

	t.Run("not PEM", func(t *testing.T) {
		svc := NewMqttService(stubFiles{data: []byte("not a certificate")})

		_, err := svc.clientOptions(ConnectionOptions{Broker: "ssl://broker:8883", CACertificate: "/etc/ca.pem"})

		assert.EqualError(t, err, "failed to append CA certificate")
	})
}
