package resource

import (
	"strconv"
	"strings"
)

// directiveCheck validates a directive value at load time so a typo is
// rejected before any host is contacted, rather than surfacing as an
// sshd error on the remote side.
type directiveCheck func(value string) bool

func yesNo(value string) bool {
	switch strings.ToLower(value) {
	case "yes", "no":
		return true
	}
	return false
}

func numeric(value string) bool {
	n, err := strconv.Atoi(value)
	return err == nil && n >= 0
}

func port(value string) bool {
	n, err := strconv.Atoi(value)
	return err == nil && n >= 1 && n <= 65535
}

func rootLogin(value string) bool {
	switch strings.ToLower(value) {
	case "yes", "no", "prohibit-password", "forced-commands-only":
		return true
	}
	return false
}

func anyValue(string) bool { return true }

// knownDirectives is the closed set of sshd_config directives the tool
// manages, keyed by canonical (lowercase) name.
var knownDirectives = map[string]directiveCheck{
	"permitrootlogin":        rootLogin,
	"passwordauthentication": yesNo,
	"pubkeyauthentication":   yesNo,
	"kbdinteractiveauthentication": yesNo,
	"permitemptypasswords":   yesNo,
	"x11forwarding":          yesNo,
	"allowagentforwarding":   yesNo,
	"allowtcpforwarding":     yesNo,
	"usepam":                 yesNo,
	"maxauthtries":           numeric,
	"maxsessions":            numeric,
	"logingracetime":         numeric,
	"clientaliveinterval":    numeric,
	"clientalivecountmax":    numeric,
	"port":                   port,
	"loglevel":               anyValue,
	"allowusers":             anyValue,
	"allowgroups":            anyValue,
	"banner":                 anyValue,
}

// KnownDirective reports whether the named sshd directive is managed,
// and whether the given value is in range for it.
func KnownDirective(name, value string) (known, valid bool) {
	check, ok := knownDirectives[CanonicalDirective(name)]
	if !ok {
		return false, false
	}
	return true, check(value)
}
