package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"qrelay/internal/security"
	"qrelay/internal/utils"
)

var errNoSession = errors.New("no session link given")

// PromptSession asks for the link shown by the receiver and returns the
// server base URL (empty when only an id was pasted) and the session id.
func PromptSession(in io.Reader, out io.Writer) (baseURL, sessionID string, err error) {
	reader := bufio.NewReader(in)

	fmt.Fprintf(out, "  %s%s▸%s Paste the link or session id shown by the receiver\n", ColorBold, ColorCyan, ColorReset)
	fmt.Fprintf(out, "  %sLink:%s ", ColorBold, ColorReset)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	fmt.Fprintln(out)

	return ParseSessionRef(line)
}

// ParseSessionRef accepts a join URL or a bare session id.
func ParseSessionRef(ref string) (baseURL, sessionID string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", errNoSession
	}
	sessionID = strings.ToLower(utils.ExtractSessionID(ref))
	if !security.ValidateUUID(sessionID) {
		return "", "", fmt.Errorf("%q is not a session link", ref)
	}
	return utils.BaseURL(ref), sessionID, nil
}
