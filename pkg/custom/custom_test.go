package custom

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/imposterd/pkg/imposter"
)

func create(t *testing.T, a *Adapter, payload string) *Server {
	t.Helper()
	cfg, err := imposter.ParseConfig([]byte(payload))
	require.NoError(t, err)
	srv, err := a.Create(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv.(*Server)
}

func TestCustom_LinesAndDefault(t *testing.T) {
	srv := create(t, New(imposter.Policy{RecordRequests: true}, nil), `{
		"protocol": "custom",
		"stubs": [{
			"predicates": [{"equals": {"data": "hello"}}],
			"responses": [{"is": {"data": "world"}}]
		}]
	}`)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	r := bufio.NewReader(conn)
	_, err = fmt.Fprint(conn, "HELLO\r\nbar\n")
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "world\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, DefaultResponse+"\n", line)

	entries := srv.Requests().List()
	require.Len(t, entries, 2)
	assert.Equal(t, "HELLO", entries[0].Request["data"])
}

func TestCustom_RejectsProxy(t *testing.T) {
	cfg, err := imposter.ParseConfig([]byte(`{"protocol":"foo","stubs":[{"responses":[{"proxy":{"to":"tcp://localhost:1"}}]}]}`))
	require.NoError(t, err)
	_, err = New(imposter.Policy{}, nil).Create(context.Background(), cfg)
	assert.ErrorIs(t, err, imposter.ErrConfiguration)
}
