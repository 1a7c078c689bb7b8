// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the registry sync workers.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
