package redis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_UnreachableFailsFast(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	start := time.Now()
	client, err := NewClient(context.Background(), Config{Addr: addr, Timeout: 100 * time.Millisecond})

	assert.Nil(t, client)
	assert.ErrorContains(t, err, addr)
	assert.Less(t, time.Since(start), 2*time.Second)
}
