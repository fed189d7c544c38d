package email

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/pubsub"
)

func section(t *testing.T, content string) *conf.ConfigSection {
	t.Helper()
	file, err := conf.NewConfigFromString(content)
	require.NoError(t, err)
	s, err := file.Section("email")
	require.NoError(t, err)
	return s
}

func TestConfigFromSection(t *testing.T) {
	config, err := newConfigFromSection(section(t, `
[email]
smtp_from = "home@example.com"
smtp_to = "me@example.com"
smtp_username = "user"
smtp_password = "pass"
smtp_host = "smtp.example.com"
smtp_port = 587
`))
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", config.host)
	assert.Equal(t, 587, config.port)
}

func TestConfigMissingKey(t *testing.T) {
	_, err := newConfigFromSection(section(t, `
[email]
smtp_from = "home@example.com"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp_to")
}

func TestNewMessage(t *testing.T) {
	m := newMessage(smtpConfig{from: "a@example.com", to: "b@example.com"}, pubsub.EmailData{
		Subject: "Price alert",
		Body:    "price is 3.10",
	})

	assert.Equal(t, []string{"Price alert"}, m.GetHeader("Subject"))
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "price is 3.10")
}
