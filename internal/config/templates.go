package config

import (
	"fmt"
	"os"
)

func Template() string {
	return botTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(botTemplate), 0o600)
}

const botTemplate = `server = "irc.libera.chat"
tls = true
nick = "le0"
alt_nicks = ["le0_bot"]
realname = "le0 bot"
channels = ["#le0-test"]
prefix = "%"
admins = ["yournick!*@your.host"]

# sasl_username = "le0"
# sasl_password = ""
# nickserv_password = ""
nickserv_wait_confirm = false
identify_delay = "2s"

cooldown = "2s"
pace_interval = "500ms"
max_reply_lines = 8
max_line_bytes = 400

# status_addr = "127.0.0.1:9300"
cors_origins = ["http://localhost:3000"]
store_path = "le0.store.toml"
`
