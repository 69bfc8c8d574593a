package mupdf

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/pdf2img/internal/document"
)

var pdfcpuOnce sync.Once

// disablePdfcpuConfig keeps pdfcpu from creating a config dir under $HOME.
func disablePdfcpuConfig() {
	pdfcpuOnce.Do(api.DisableConfigDir)
}

// decrypt removes the security handler from data using password as both the
// user and the owner password.
func decrypt(data []byte, password string) ([]byte, error) {
	disablePdfcpuConfig()

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, conf); err != nil {
		if isPasswordError(err) {
			return nil, fmt.Errorf("%w: %v", document.ErrInvalidPassword, err)
		}
		return nil, fmt.Errorf("%w: decrypt: %v", document.ErrMalformed, err)
	}
	return out.Bytes(), nil
}

// isPasswordError matches pdfcpu's authentication failures, which are plain
// string errors.
func isPasswordError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "password") || strings.Contains(s, "authenticat")
}
