package cfbypass

import (
	"io"

	http "github.com/bogdanfinn/fhttp"
)

// readResponseBody decompresses and reads the full response body.
// Caller should defer resp.Body.Close() before calling this.
func readResponseBody(resp *http.Response) ([]byte, error) {
	body := http.DecompressBody(resp)
	defer body.Close()
	return io.ReadAll(body)
}
