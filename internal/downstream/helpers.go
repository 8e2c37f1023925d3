package downstream

import (
	"bytes"
	"io"
	"net/http"
)

func bytesReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}

	return bytes.NewReader(b)
}

func readBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}

	return string(body)
}
