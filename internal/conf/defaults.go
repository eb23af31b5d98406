// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with other packages
const (
	DefaultLedgerPath = ".previouslyNotified"
	DefaultTokenFile  = ".oAuthToken"
	DefaultDaysBack   = 2
	DefaultBaseURL    = "https://api.ebird.org/v2"
	DefaultSubject    = "birdNotifier Message"
	DefaultLogFile    = "birdNotifier.log"

	AuthOAuth2 = "oauth2"
	AuthPlain  = "plain"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("ebird.apikey", "")
	v.SetDefault("ebird.region", "")
	v.SetDefault("ebird.daysback", DefaultDaysBack)
	v.SetDefault("ebird.baseurl", DefaultBaseURL)
	v.SetDefault("ebird.timeout", 30*time.Second)

	v.SetDefault("exclude", []string{})

	v.SetDefault("ledger.path", DefaultLedgerPath)

	v.SetDefault("email.sender", "")
	v.SetDefault("email.recipients", []string{})
	v.SetDefault("email.subject", DefaultSubject)
	v.SetDefault("email.smtphost", "smtp.gmail.com")
	v.SetDefault("email.smtpport", 587)
	v.SetDefault("email.auth", AuthOAuth2)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.oauth2.clientid", "")
	v.SetDefault("email.oauth2.clientsecret", "")
	v.SetDefault("email.oauth2.tokenfile", DefaultTokenFile)
	v.SetDefault("email.oauth2.authurl", "https://accounts.google.com/o/oauth2/auth")
	v.SetDefault("email.oauth2.tokenurl", "https://oauth2.googleapis.com/token")
	v.SetDefault("email.oauth2.redirecturl", "urn:ietf:wg:oauth:2.0:oob")
	v.SetDefault("email.oauth2.scopes", []string{"https://mail.google.com/"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", DefaultLogFile)

	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("metrics.job", "birdnotifier")
	v.SetDefault("metrics.textfile", "")
}
