package audit

import (
	"strconv"
	"strings"
)

var (
	splitter     = strings.Repeat("#", 80)
	softSplitter = strings.Repeat("-", 80)
)

// Formatter renders the level-specific body of a detailed entry. It holds no state;
// the output depends only on the level and the request.
type Formatter struct{}

// Implemented reports whether level produces content. LevelFull and LevelDebug are
// reserved and render nothing.
func (Formatter) Implemented(level Level) bool {
	switch level {
	case LevelFull, LevelDebug:
		return false
	default:
		return true
	}
}

// Format renders req at level.
func (f Formatter) Format(level Level, req *CapturedRequest) string {
	switch level {
	case LevelFull, LevelDebug:
		return ""
	default:
		return f.formatInfo(req)
	}
}

func (Formatter) formatInfo(req *CapturedRequest) string {
	var sb strings.Builder
	line := func(label, value string) {
		sb.WriteString(label)
		sb.WriteString(" : ")
		sb.WriteString(value)
		sb.WriteByte('\n')
	}
	section := func(title string) {
		sb.WriteString(softSplitter + "\n")
		sb.WriteString(title + "\n")
		sb.WriteString(softSplitter + "\n")
	}

	line("Server Time", req.ServerTime)
	line("Request URI", req.URI)
	line("Request Method", strings.ToUpper(req.Method))
	line("Handler Name", req.HandlerName)
	line("Action Name (Method Name)", req.ActionName)
	line("Request is File", strconv.FormatBool(req.IsFile))
	line("Local Address", req.LocalAddr)
	line("Remote Address", req.RemoteAddr)
	line("Remote Host", req.RemoteHost)
	line("Server Port", req.ServerPort)
	line("Server Protocol", req.ServerProtocol)
	line("Request Event (Local) Time", req.RequestTime)

	section("# HTTP RAW - Headers")
	sb.WriteString(strings.TrimRight(req.RawHeaders, " \t\r\n"))
	sb.WriteByte('\n')

	section("# HTTP RAW - Parameters")
	for k, v := range req.Arguments().All() {
		line(k, v)
	}

	if req.IncludesBody() {
		section("# HTTP RAW - Body")
		sb.WriteString(req.Body)
		sb.WriteByte('\n')
	}

	return sb.String()
}
