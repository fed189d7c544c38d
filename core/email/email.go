package email

import (
	"fmt"

	gomail "gopkg.in/mail.v2"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/pubsub"
)

type smtpConfig struct {
	from     string
	to       string
	username string
	password string
	host     string
	port     int
}

// Init sends an email for every email:send event.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, configSection *conf.ConfigSection) {
	config, err := newConfigFromSection(configSection)
	if err != nil {
		logger.Fatal(fmt.Sprintf("email: %v", err))
		return
	}

	subEmail, _ := bus.Subscribe("email:send")
	defer subEmail.Close()

	dialer := gomail.NewDialer(config.host, config.port, config.username, config.password)

	for event := range subEmail.Ch {
		if event.Type != "email" {
			continue
		}

		if err := dialer.DialAndSend(newMessage(config, event.Email)); err != nil {
			logger.Error(fmt.Sprintf("email: failed to send (%v)", err))
			continue
		}
		logger.Info(fmt.Sprintf("email: sent %q", event.Email.Subject))
	}
}

func newMessage(config smtpConfig, email pubsub.EmailData) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", config.from)
	m.SetHeader("To", config.to)
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/plain", email.Body)
	return m
}

func newConfigFromSection(configSection *conf.ConfigSection) (smtpConfig, error) {
	var config smtpConfig
	var err error

	required := []struct {
		key  string
		dest *string
	}{
		{"smtp_from", &config.from},
		{"smtp_to", &config.to},
		{"smtp_username", &config.username},
		{"smtp_password", &config.password},
		{"smtp_host", &config.host},
	}
	for _, s := range required {
		if *s.dest, err = configSection.GetString(s.key); err != nil {
			return smtpConfig{}, fmt.Errorf("%s not set in config - %v", s.key, err)
		}
	}

	if config.port, err = configSection.GetInt("smtp_port"); err != nil {
		return smtpConfig{}, fmt.Errorf("smtp_port not set in config - %v", err)
	}
	return config, nil
}
