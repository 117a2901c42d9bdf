package netenv

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// NetrcEntry is one machine's credentials from a .netrc file.
type NetrcEntry struct {
	Login    string
	Password string
}

// NetrcFile locates the .netrc file to read: $NETRC if set, else
// ~/.netrc (~/_netrc on Windows), resolved via go-homedir.
func NetrcFile() (string, bool) {
	if p := os.Getenv("NETRC"); p != "" {
		return p, true
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", false
	}
	name := ".netrc"
	if filepath.Separator == '\\' {
		name = "_netrc"
	}
	path := filepath.Join(home, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// LookupNetrc reads the .netrc file (if any) and returns the entry for
// authority (tried as "host:port" then "host"), following the
// "trust_env=true, and .netrc matches authority" selection rule.
func LookupNetrc(authority string) (NetrcEntry, bool) {
	path, ok := NetrcFile()
	if !ok {
		return NetrcEntry{}, false
	}
	entries, err := parseNetrc(path)
	if err != nil {
		return NetrcEntry{}, false
	}
	host := authority
	if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		host = authority[:i]
	}
	if e, ok := entries[authority]; ok {
		return e, true
	}
	if e, ok := entries[host]; ok {
		return e, true
	}
	if e, ok := entries["default"]; ok {
		return e, true
	}
	return NetrcEntry{}, false
}

// parseNetrc implements the small subset of the .netrc grammar relay needs:
// whitespace-separated "machine|default/login/password" tokens, one
// machine block at a time.
func parseNetrc(path string) (map[string]NetrcEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries := map[string]NetrcEntry{}
	var machine string
	var cur NetrcEntry
	flush := func() {
		if machine != "" {
			entries[machine] = cur
		}
		machine, cur = "", NetrcEntry{}
	}

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	var pending string
	for sc.Scan() {
		tok := sc.Text()
		if pending == "" {
			switch tok {
			case "default":
				flush()
				machine = "default"
			case "machine", "login", "password", "account", "macdef":
				pending = tok
			}
			continue
		}
		switch pending {
		case "machine":
			flush()
			machine = tok
		case "login":
			cur.Login = tok
		case "password":
			cur.Password = tok
		}
		pending = ""
	}
	flush()
	return entries, sc.Err()
}
