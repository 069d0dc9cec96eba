package smtp

import (
	"context"
	"fmt"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/imposterd/pkg/imposter"
)

func TestSMTP_RecordsMessage(t *testing.T) {
	cfg, err := imposter.ParseConfig([]byte(`{"protocol":"smtp"}`))
	require.NoError(t, err)
	srv, err := New(imposter.Policy{RecordRequests: true}, nil).Create(context.Background(), cfg)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Stop(ctx))
	}()

	msg := "From: Sender <sender@example.com>\r\n" +
		"To: First <first@example.com>, second@example.com\r\n" +
		"Cc: copy@example.com\r\n" +
		"Subject: Greetings\r\n" +
		"\r\n" +
		"Hello there\r\n"
	err = smtp.SendMail(
		fmt.Sprintf("127.0.0.1:%d", srv.Port()),
		nil,
		"sender@example.com",
		[]string{"first@example.com", "second@example.com"},
		[]byte(msg),
	)
	require.NoError(t, err)

	rec := srv.(*Server).Requests()
	require.NotNil(t, rec)
	require.Eventually(t, func() bool { return rec.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	req := rec.List()[0].Request
	assert.Equal(t, "sender@example.com", req["envelopeFrom"])
	assert.Equal(t, []any{"first@example.com", "second@example.com"}, req["envelopeTo"])
	assert.Equal(t, "Sender <sender@example.com>", req["from"])
	assert.Equal(t, []any{"first@example.com", "second@example.com"}, req["to"])
	assert.Equal(t, []any{"copy@example.com"}, req["cc"])
	assert.Equal(t, "Greetings", req["subject"])
	assert.Equal(t, "Hello there", req["text"])
	assert.NotEmpty(t, req["requestFrom"])
}

func TestSMTP_RejectsStubs(t *testing.T) {
	cfg, err := imposter.ParseConfig([]byte(`{"protocol":"smtp","stubs":[{"responses":[{"is":{}}]}]}`))
	require.NoError(t, err)
	_, err = New(imposter.Policy{}, nil).Create(context.Background(), cfg)
	assert.ErrorIs(t, err, imposter.ErrConfiguration)
}

func TestParseMessage_Unparseable(t *testing.T) {
	out := parseMessage([]byte("no headers at all"))
	assert.Equal(t, "no headers at all", out["text"])
	assert.Equal(t, "", out["subject"])
}
