package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSendBuildsMessage(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "boq@site.local"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	p.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Nil(t, a)
		return nil
	}

	require.NoError(t, p.Send(context.Background(), []string{"pm@site.local", "qs@site.local"}, "Variation applied", "<p>done</p>"))
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"pm@site.local", "qs@site.local"}, gotTo)
	assert.Contains(t, gotMsg, "To: pm@site.local, qs@site.local\r\n")
	assert.Contains(t, gotMsg, "Subject: Variation applied\r\n")
	assert.Contains(t, gotMsg, "<p>done</p>")
}

func TestSMTPSendRequiresRecipients(t *testing.T) {
	err := NewSMTP(Config{Host: "mail.local", Port: 25}).Send(context.Background(), nil, "s", "b")
	assert.Error(t, err)
}
