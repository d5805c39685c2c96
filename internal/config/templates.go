package config

import (
	"fmt"
	"os"
)

func Template() string {
	return clientTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(clientTemplate), 0o600)
}

const clientTemplate = `host = "127.0.0.1"
port = 3000
output = "output.json"

# spacing between resend requests; "0s" disables pacing
resend_interval = "100ms"
max_connect_attempts = 1

connect_timeout = "5s"
read_timeout = "15s"
write_timeout = "15s"

[log]
level = "info"
timestamp = true
no_color = false
file = ""
max_size_mb = 50
max_backups = 3

[metrics]
textfile = ""
`
