package pages

import (
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

func readAndUnmarshal(filePath string, v interface{}) error {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return unmarshal(file, v)
}

func unmarshal(b []byte, v interface{}) error {
	return yaml.Unmarshal(b, v)
}

// getHost tries its best to return the request host without port.
func getHost(r *http.Request) string {
	host := r.Host
	if len(host) == 0 {
		host = r.URL.Host
	}
	// Slice off any port information.
	if i := strings.LastIndex(host, ":"); i != -1 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	return host
}
